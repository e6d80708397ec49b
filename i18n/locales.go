package i18n

// English returns a fresh copy of the English table.
func English() *Strings {
	return &Strings{
		Title:       "Moodle Plugin Scraper",
		Description: "Click a button to extract additional plugins from admin/plugins.php",
		Languages:   "Languages",
		BtnText:     "Simple version [TXT]",
		BtnDocument: "Advanced version [PDF]",
		Headers: Headers{
			Name:          "Plugin Name",
			Component:     "Component",
			Release:       "Release",
			VersionNumber: "Version Number",
		},
		AdditionalPlugins: "Additional Plugins",
		Plugins:           "plugin(s)",
		GeneratedOn:       "Generated on",
		From:              "from",
		NothingFound:      "No additional plugins found.",
		Exported:          "exported.",
		ExtractionDone:    "Extraction completed.",
		ExtractionError:   "Error during extraction.",
		ExtractionRunning: "Analysis in progress…",
		DateTimeLayout:    "1/2/2006, 3:04:05 PM",
	}
}

// French returns a fresh copy of the French table.
func French() *Strings {
	return &Strings{
		Title:       "Moodle Plugin Scraper",
		Description: "Clique sur un bouton pour extraire les plugins additionnels depuis admin/plugins.php",
		Languages:   "Langues",
		BtnText:     "Version simple [TXT]",
		BtnDocument: "Version avancée [PDF]",
		Headers: Headers{
			Name:          "Nom du plugin",
			Component:     "Composant",
			Release:       "Version",
			VersionNumber: "Numéro de version",
		},
		AdditionalPlugins: "Plugins additionnels",
		Plugins:           "plugin(s)",
		GeneratedOn:       "Généré le",
		From:              "depuis",
		NothingFound:      "Aucun plugin additionnel trouvé.",
		Exported:          "exporté(s).",
		ExtractionDone:    "Extraction terminée.",
		ExtractionError:   "Erreur pendant l'extraction.",
		ExtractionRunning: "Analyse en cours…",
		DateTimeLayout:    "02/01/2006 15:04:05",
	}
}
