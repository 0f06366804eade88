// Package log provides the leveled logger used by the dialogue pipeline.
//
// Components accept a Logger and fall back to the package-level logger when given nil.
// The CLI and HTTP server install a GologLogger (kataras/golog); tests usually pass a
// NoOpLogger or a DefaultLogger writing into a buffer.
//
//	logger := log.New(os.Stderr, log.LogLevelDebug)
//	logger.Info("structure generated: %d nodes", g.Len())
package log
