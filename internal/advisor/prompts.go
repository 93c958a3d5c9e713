package advisor

import "fmt"

const (
	recommendationSystem = "Vous êtes un assistant agricole professionnel. Répondez en français formel, par une seule phrase concise."

	recommendationInstruction = "À partir des données de prévision ci‑dessous, indiquez en une seule phrase formelle en français " +
		"quelles cultures (oignons, tomates, menthe) doivent être arrosées aujourd'hui et si un arrosage est nécessaire. " +
		"Prenez en compte les besoins différents en eau par culture, la probabilité de pluie et la date dans l'année. " +
		"Répondez en une seule phrase."

	recommendationMaxTokens   = 150
	recommendationTemperature = 0.3

	chatSystem      = "Vous êtes un assistant agricole professionnel."
	chatMaxTokens   = 150
	chatTemperature = 0.5
	chatNoData      = "no data"
)

func recommendationPrompt(table string) string {
	return fmt.Sprintf("Forecast Data:\n%s\n\nInstruction:\n%s", table, recommendationInstruction)
}

func chatPrompt(text, table string) string {
	if table == "" {
		table = chatNoData
	}
	return fmt.Sprintf("User: %s\n\nForecast data (if available):\n%s\n\n"+
		"Réponds en arabe tunisien ou arabe simple en donnant un conseil agricole concis.", text, table)
}
