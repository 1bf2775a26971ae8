package indicator

import (
	"math"
	"time"

	"github.com/ezquant/azsignal/azsignal/model"
)

// weekEnding returns the Friday closing the week the given time belongs to (weeks end on Friday)
func weekEnding(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, (int(time.Friday)-int(day.Weekday())+7)%7)
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Weekly resamples the dataframe into weeks ending on Friday. Only weeks that are complete
// from the point of view of the last bar are returned, i.e. weeks whose Friday is not after
// the last bar. The second return value maps every bar of df to the index of the most recent
// week visible on that bar, -1 when no week is visible yet.
func Weekly(df *model.Dataframe) (*model.Dataframe, []int) {
	weekly := model.NewDataframe(df.Pair)
	align := make([]int, df.Len())
	if df.Len() == 0 {
		return weekly, align
	}

	lastDay := dayOf(df.Time[df.Len()-1])
	var (
		labels  []time.Time
		current model.Candle
		label   time.Time
		open    bool
	)

	flush := func() {
		if open && !label.After(lastDay) {
			weekly.Append(current)
			labels = append(labels, label)
		}
	}

	for i := 0; i < df.Len(); i++ {
		candle := df.Candle(df.Len() - 1 - i)
		bucket := weekEnding(candle.Time)
		if !open || !bucket.Equal(label) {
			flush()
			label = bucket
			current = candle
			current.Time = bucket
			open = true
			continue
		}
		current.High = math.Max(current.High, candle.High)
		current.Low = math.Min(current.Low, candle.Low)
		current.Close = candle.Close
		current.Volume += candle.Volume
	}
	flush()

	week := -1
	for i, t := range df.Time {
		day := dayOf(t)
		for week+1 < len(labels) && !labels[week+1].After(day) {
			week++
		}
		align[i] = week
	}

	return weekly, align
}

// Align spreads a weekly series over the bars of the source dataframe using the alignment
// returned by Weekly. Bars without a visible week are NaN.
func Align(weekly model.Series[float64], align []int) model.Series[float64] {
	out := make(model.Series[float64], len(align))
	for i, week := range align {
		if week < 0 || week >= len(weekly) {
			out[i] = math.NaN()
			continue
		}
		out[i] = weekly[week]
	}
	return out
}
