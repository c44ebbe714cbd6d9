package main

import (
	"fmt"
	"os"

	"github.com/fulldump/goconfig"
	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/rowmodel/bootstrap"
	"github.com/fulldump/rowmodel/configuration"
	"github.com/fulldump/rowmodel/logger"
)

var banner = `
 ____
|  _ \ _____      _____  ___ _ ____   _____ _ __
| |_) / _ \ \ /\ / / __|/ _ \ '__\ \ / / _ \ '__|
|  _ < (_) \ V  V /\__ \  __/ |   \ V /  __/ |
|_| \_\___/ \_/\_/ |___/\___|_|    \_/ \___|_|   version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		json2.MarshalWrite(os.Stdout, c, jsontext.WithIndent("    "))
		fmt.Println()
	}

	logData, err := logger.New().FromPath(c.LogFile).WithLevel(c.LogLevel).Make()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: logger:", err.Error())
		os.Exit(-1)
	}
	defer logData.Close()

	start, _, err := bootstrap.Bootstrap(&c, logData.Logger)
	if err != nil {
		logData.Logger.Error().Err(err).Msg("bootstrap")
		os.Exit(-1)
	}

	start()
}
