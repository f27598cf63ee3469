package config

import "os"

func IsDebug() bool {
	return os.Getenv("RECOMATE_DEBUG") == "1"
}

func IsJSONLogs() bool {
	return os.Getenv("LOG_FORMAT") == "json"
}
