package main

import (
	"os"
	"strings"

	"github.com/fulldump/goconfig"
	"github.com/rs/zerolog"
)

type Config struct {
	Test      string `usage:"name of the test: ALL | INSERT | SCROLL"`
	Base      string `usage:"base URL, empty to start a local rowserver"`
	N         int64  `usage:"number of rows"`
	Workers   int    `usage:"number of insert workers"`
	BlockSize int    `usage:"rows per block request"`
	Viewport  int    `usage:"rows visible at once while scrolling"`
	Verbose   bool   `usage:"log the row model and the local rowserver"`
}

var cleanups []func()

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

func main() {

	c := Config{
		Test:      "all",
		N:         100_000,
		Workers:   16,
		BlockSize: 100,
		Viewport:  50,
	}
	goconfig.Read(&c)

	defer func() {
		log.Info().Msg("cleaning up")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	switch strings.ToUpper(c.Test) {
	case "ALL", "SCROLL":
		TestScroll(&c, TestInsert(&c))
	case "INSERT":
		TestInsert(&c)
	default:
		log.Error().Str("test", c.Test).Msg("unknown test")
	}
}

// verbose is the logger handed to the components under test.
func (c *Config) verbose() zerolog.Logger {
	if c.Verbose {
		return log
	}
	return zerolog.Nop()
}
