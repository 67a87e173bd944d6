package main

import "github.com/ideamans/go-l10n"

func init() {
	// Italian translations for CLI messages.
	l10n.Register("it", l10n.LexiconMap{
		// Flag categories
		"Configuration": "Configurazione",
		"Logging":       "Log",
		"Output":        "Uscita",
		"Delivery":      "Consegna",
		"Transport":     "Trasporto",
		"Decoding":      "Decodifica",
		"History":       "Cronologia",

		// Root command
		"Export video frames as images and zip archives": "Esporta fotogrammi video come immagini e archivi zip",
		"framegrab captures single frames, queued frames or every frame of an interval from a video file and delivers them as files, a zip archive or a streamed download.": "framegrab cattura singoli fotogrammi, fotogrammi in coda o tutti i fotogrammi di un intervallo da un file video e li consegna come file, archivio zip o download in streaming.",
		"Error: %v": "Errore: %v",

		// Global flags
		"YAML config file (default: $XDG_CONFIG_HOME/framegrab/config.yaml)": "File di configurazione YAML (predefinito: $XDG_CONFIG_HOME/framegrab/config.yaml)",
		"Log level (debug, info, warn, error)":                               "Livello di log (debug, info, warn, error)",
		"Log format (console, json)":                                         "Formato del log (console, json)",
		"Suppress all log output":                                            "Disattiva tutti i messaggi di log",
		"Directory saved files land in":                                      "Cartella in cui salvare i file",
		"Image format (jpeg, png, webp)":                                     "Formato immagine (jpeg, png, webp)",
		"Quality preset (low, medium, high) or a value in [0,1]":             "Qualità predefinita (low, medium, high) o un valore in [0,1]",
		"Resize frames: 50%, w640 or h480":                                   "Ridimensiona i fotogrammi: 50%, w640 o h480",
		"Prefix for entry names (default: the video file name)":              "Prefisso dei nomi (predefinito: il nome del file video)",
		"Capture and encode frames but discard the files": "Cattura e codifica i fotogrammi ma scarta i file",
		"Write a Markdown summary of the export to this file":                "Scrive un riepilogo Markdown dell'esportazione in questo file",
		"Delivery: link, zip, zipstream or share":                            "Consegna: link, zip, zipstream o share",
		"Build zip archives in memory instead of streaming them":             "Crea gli archivi zip in memoria invece di inviarli in streaming",
		"Download channel for streamed archives (auto, popup, frame, system, fetch)": "Canale di download per gli archivi in streaming (auto, popup, frame, system, fetch)",
		"Path to Chrome (falls back to CHROME_PATH, then the system browser)": "Percorso di Chrome (altrimenti CHROME_PATH, poi il browser di sistema)",
		"Show the Chrome window":                                             "Mostra la finestra di Chrome",
		"Open the folder of shared files":                                    "Apre la cartella dei file condivisi",
		"Base URL of a running 'framegrab serve' to stream through":          "URL di un 'framegrab serve' attivo da usare per lo streaming",
		"Redis address for the ack bus and the cache":                        "Indirizzo Redis per le conferme e la cache",
		"How long to wait for each transport acknowledgement":                "Attesa massima per ogni conferma del trasporto",
		"Path to ffmpeg (default: search PATH)":                              "Percorso di ffmpeg (predefinito: ricerca nel PATH)",
		"Job history database":                                               "Database della cronologia dei lavori",

		// Commands
		"Show container details and the detected frame rate":          "Mostra i dettagli del contenitore e la frequenza rilevata",
		"Export the frame at one position":                            "Esporta il fotogramma in una posizione",
		"Position in seconds":                                         "Posizione in secondi",
		"Export every frame between two positions":                    "Esporta tutti i fotogrammi tra due posizioni",
		"Start position in seconds":                                   "Posizione iniziale in secondi",
		"End position in seconds (default: the end of the video)":     "Posizione finale in secondi (predefinita: la fine del video)",
		"Frame rate (default: detect)":                                "Frequenza dei fotogrammi (predefinita: rilevata)",
		"Seek the opened video itself instead of a private copy":      "Sposta il video aperto invece di una copia privata",
		"Export a list of positions as one archive":                   "Esporta un elenco di posizioni in un unico archivio",
		"Position in seconds; repeat for each frame":                  "Posizione in secondi; ripetere per ogni fotogramma",
		"Capture each frame while queueing instead of at export time": "Cattura ogni fotogramma all'inserimento invece che all'esportazione",
		"Queue the positions for a later run without exporting":       "Accoda le posizioni per un'esecuzione successiva senza esportare",
		"Empty the stored queue after a successful export":            "Svuota la coda salvata dopo un'esportazione riuscita",
		"Run the background worker and the download route":            "Avvia il worker in background e il percorso di download",
		"Address to listen on":                                        "Indirizzo di ascolto",
		"Serve other paths from this origin, falling back to the cache": "Serve gli altri percorsi da questa origine, con la cache di riserva",
		"List recent export jobs":                                     "Elenca le esportazioni recenti",
		"Number of jobs to show":                                      "Numero di lavori da mostrare",
		"Show version information":                                    "Mostra la versione",
		"framegrab version %s":                                        "framegrab versione %s",
	})
}
