package logging

import "github.com/sirupsen/logrus"

// ConfigFields builds the base fields for configuration diagnostics.
func ConfigFields(option string) logrus.Fields {
	return logrus.Fields{
		"scope":  "config",
		"option": option,
	}
}

// ServerFields builds the base fields for lifecycle diagnostics.
func ServerFields(action, addr string) logrus.Fields {
	return logrus.Fields{
		"scope":  "server",
		"action": action,
		"addr":   addr,
	}
}

// ProxyFields builds the base fields for proxy diagnostics.
func ProxyFields(prefix, target string) logrus.Fields {
	return logrus.Fields{
		"scope":  "proxy",
		"prefix": prefix,
		"target": target,
	}
}
