package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("it", l10n.LexiconMap{
		// Jobs
		"Exporting %s (%d frames at %d fps)": "Esportazione di %s (%d fotogrammi a %d fps)",
		"Exporting %s (%d frames)":           "Esportazione di %s (%d fotogrammi)",
		"Export finished: %s":                "Esportazione completata: %s",
		"%d frames queued in %s":             "%d fotogrammi in coda in %s",
		"Discarding the queue kept for another video": "Coda di un altro video scartata",
		"Export %s failed: %v":               "Esportazione %s non riuscita: %v",
		"Export %s panicked: %v":             "Esportazione %s interrotta da un errore interno: %v",
		"Could not record job %s: %v":        "Impossibile registrare il lavoro %s: %v",
		"History disabled: %v":               "Cronologia disattivata: %v",
		"Applied migration %s":               "Migrazione %s applicata",
		"Saved %s":                           "Salvato %s",
		"Dry run: discarded %d files (%s)":   "Prova: %d file scartati (%s)",
		"Interrupted, shutting down...":      "Interrotto, chiusura in corso...",

		// Source and frame rate
		"Probed %s %s %dx%d, %d samples":  "Analizzato %s %s %dx%d, %d campioni",
		"Decoding frame at %v failed: %v": "Decodifica del fotogramma a %v non riuscita: %v",
		"Detecting frame rate":            "Rilevamento della frequenza dei fotogrammi",
		"Detected %d fps from %d samples": "Rilevati %d fps da %d campioni",
		"Frame rate unknown: %v":          "Frequenza dei fotogrammi sconosciuta: %v",

		// Seeking and capture
		"Seeking to %.3fs":               "Posizionamento a %.3fs",
		"Skipping frame at %.3fs: %s":    "Fotogramma a %.3fs saltato: %s",
		"Captured %dx%d %s at %.3fs":     "Catturato %dx%d %s a %.3fs",
		"Controls re-enabled on %s":      "Controlli riattivati su %s",
		"Duplicate source opened for %s": "Sorgente duplicata aperta per %s",

		// Archives and delivery
		"Dropping duplicate entry %s":     "Voce duplicata %s ignorata",
		"Sharing failed: %v":              "Condivisione non riuscita: %v",
		"Shared %d files in %s":           "%d file condivisi in %s",
		"%s failed: %v":                   "%s non riuscito: %v",
		"Downloaded %s":                   "Scaricato %s",
		"Chrome not found, installing Chromium": "Chrome non trovato, installazione di Chromium",
		"Chrome started from %s":          "Chrome avviato da %s",
		"Opened %s in the system browser": "%s aperto nel browser di sistema",
		"Installing WebKit":               "Installazione di WebKit",
		"WebKit started":                  "WebKit avviato",
		"Download channel: %s":            "Canale di download: %s",

		// Transport
		"Stream %s created for %s":            "Flusso %s creato per %s",
		"Ignoring stray ack %s":               "Conferma %s sconosciuta ignorata",
		"Ack subscription failed: %v":         "Sottoscrizione alle conferme non riuscita: %v",
		"No worker listening on %s":           "Nessun worker in ascolto su %s",
		"Discarding malformed message: %v":    "Messaggio non valido scartato: %v",
		"%s %s failed: %v":                    "%s %s non riuscito: %v",
		"Redis listener stopped: %v":          "Ascolto Redis interrotto: %v",
		"Websocket upgrade failed: %v":        "Aggiornamento websocket non riuscito: %v",
		"Websocket closed: %v":                "Websocket chiuso: %v",

		// Download route
		"Listening on %s":                         "In ascolto su %s",
		"Server stopped: %v":                      "Server arrestato: %v",
		"Delivering %s as %s":                     "Consegna di %s come %s",
		"Download %s aborted after %d bytes: %v":  "Download %s interrotto dopo %d byte: %v",
		"Could not abort stream %s: %v":           "Impossibile interrompere lo stream %s: %v",
		"%s %s -> %d (%d bytes, %s) [%s]":         "%s %s -> %d (%d byte, %s) [%s]",
		"Could not cache %s: %v":                  "Impossibile memorizzare %s nella cache: %v",
		"Cache lookup for %s failed: %v":          "Ricerca di %s nella cache non riuscita: %v",
		"Upstream failed for %s with nothing cached: %v": "Origine non raggiungibile per %s e nessuna copia in cache: %v",
		"Serving cached %s: %v":                   "Uso la copia in cache di %s: %v",

		// Notices
		"A pop-up window was blocked. Please allow it so the download can start.": "Una finestra pop-up è stata bloccata. Consentila per avviare il download.",
		"Download blocked":                                   "Download bloccato",
		"Sharing failed":                                     "Condivisione non riuscita",
		"We tried to share the files.":                       "Abbiamo provato a condividere i file.",
		"Share again":                                        "Condividi di nuovo",
		"Retry":                                              "Riprova",
		"(%s is only offered on an interactive terminal)":    "(%s è disponibile solo su un terminale interattivo)",
	})
}
