package main

import "flag"

var (
	flagInitDB, flagServer, flagVersion bool
	flagAddr, flagLogLevel, flagEnvFile string
)

func cliInit() {
	flag.BoolVar(&flagInitDB, "init-db", false, "Create the catalog metadata tables and exit handling of other arguments")
	flag.BoolVar(&flagServer, "server", false, "Start the server, continues listening after initialization")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.StringVar(&flagAddr, "addr", ":5000", "Address the http server will listen on")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Sets the logging level: `[debug, info, warn, err]`")
	flag.StringVar(&flagEnvFile, "env", ".env", "Specify alternative path to the `.env` file")
	flag.Parse()
}
