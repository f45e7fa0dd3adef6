package signal

const (
	rsiPeriod      = 14
	macdFastPeriod = 12
	macdSlowPeriod = 26
)

// RSI computes the relative strength index over the trailing period using
// Wilder smoothing. With fewer than period+1 prices it returns the neutral
// value 50.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the difference between the fast and slow EMAs of the price
// series. With fewer prices than the slow period it returns 0.
func MACD(prices []float64) float64 {
	if len(prices) < macdSlowPeriod {
		return 0
	}
	return ema(prices, macdFastPeriod) - ema(prices, macdSlowPeriod)
}

func ema(prices []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	out := prices[0]
	for _, p := range prices[1:] {
		out = p*k + out*(1-k)
	}
	return out
}
