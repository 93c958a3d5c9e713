package weather

import (
	"bytes"
	"strconv"
	"text/tabwriter"
)

// promptTimeLayout matches the forecast_time rendering of the historical CSV log.
const promptTimeLayout = "2006-01-02 15:04:05"

// FormatTable renders records as a compact right-aligned text table with the
// columns forecast_time, temp_c, humidity_percent, weather_condition and
// precipitation_prob_percent, in that order.
func FormatTable(records []ForecastRecord) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)

	_, _ = tw.Write([]byte("forecast_time\ttemp_c\thumidity_percent\tweather_condition\tprecipitation_prob_percent\t\n"))
	for _, r := range records {
		line := r.ForecastTime.UTC().Format(promptTimeLayout) + "\t" +
			formatFloat(r.TempC) + "\t" +
			formatFloat(r.HumidityPercent) + "\t" +
			r.WeatherCondition + "\t" +
			formatFloat(r.PrecipitationProbPercent) + "\t\n"
		_, _ = tw.Write([]byte(line))
	}
	_ = tw.Flush()

	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
