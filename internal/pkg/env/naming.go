package env

import (
	"fmt"
	"strings"
)

const Prefix = "BARRIER_"

type NamingConvention struct {
	prefix string
}

func NewNamingConvention() *NamingConvention {
	return &NamingConvention{prefix: Prefix}
}

// Replace converts flag name to ENV variable name
// for example "barrier-idle-timeout" -> "BARRIER_BARRIER_IDLE_TIMEOUT".
func (n *NamingConvention) Replace(flagName string) string {
	if len(flagName) == 0 {
		panic(fmt.Errorf("flag name cannot be empty"))
	}

	return n.prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func Files() []string {
	// https://github.com/bkeepers/dotenv#what-other-env-files-can-i-use
	return []string{
		".env.local",
		".env",
	}
}
