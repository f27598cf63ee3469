package installer

import (
	"fmt"
	"sort"
	"strings"
)

type InstallState struct {
	EnvVars map[string]string
}

func NewInstallState() *InstallState {
	return &InstallState{
		EnvVars: make(map[string]string),
	}
}

func (s *InstallState) Get(key string) string {
	return s.EnvVars[key]
}

// Finalize derives the transport flags and drops empty optional values.
func (s *InstallState) Finalize() {
	channel := s.EnvVars[keyChannel]
	delete(s.EnvVars, keyChannel)

	s.EnvVars["ENABLE_HTTP"] = fmt.Sprint(channel != channelTelegram)
	s.EnvVars["ENABLE_TELEGRAM"] = fmt.Sprint(channel != channelHTTP && s.EnvVars["TELEGRAM_TOKEN"] != "")

	for k, v := range s.EnvVars {
		if strings.TrimSpace(v) == "" {
			delete(s.EnvVars, k)
		}
	}
}

// Content renders the state as .env lines sorted by key.
func (s *InstallState) Content() string {
	keys := make([]string, 0, len(s.EnvVars))
	for k := range s.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s=%s\n", k, s.EnvVars[k]))
	}
	return b.String()
}
