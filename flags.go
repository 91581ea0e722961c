package main

import (
	"mobilus-to-mqtt/application"

	"github.com/urfave/cli/v2"
)

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagConfigFile = &cli.StringFlag{
	Name:    "config",
	Usage:   "optional YAML config file",
	EnvVars: []string{"CONFIG_FILE"},
}

var FlagStorePath = &cli.StringFlag{
	Name:    "store-path",
	Usage:   "path of the config entry database",
	EnvVars: []string{"STORE_PATH"},
	Value:   "mobilus.db",
}

var FlagEntryID = &cli.StringFlag{
	Name:    "entry-id",
	Usage:   "config entry to load and update",
	EnvVars: []string{"ENTRY_ID"},
	Value:   "default",
}

var FlagMobilusHost = &cli.StringFlag{
	Name:    "mobilus-host",
	Usage:   "gateway host or URL",
	EnvVars: []string{"MOBILUS_HOST"},
}

var FlagMobilusUsername = &cli.StringFlag{
	Name:    "mobilus-username",
	EnvVars: []string{"MOBILUS_USERNAME"},
}

var FlagMobilusPassword = &cli.StringFlag{
	Name:    "mobilus-password",
	EnvVars: []string{"MOBILUS_PASSWORD"},
}

var FlagRefreshInterval = &cli.IntFlag{
	Name:    "refresh-interval",
	Usage:   "gateway polling interval in seconds",
	EnvVars: []string{"REFRESH_INTERVAL"},
}

var FlagStopSettleDelay = &cli.DurationFlag{
	Name:    "stop-settle-delay",
	Usage:   "wait after STOP before refreshing state",
	EnvVars: []string{"STOP_SETTLE_DELAY"},
	Value:   application.DefaultStopSettleDelay,
}

var FlagMQTTUrl = &cli.StringFlag{
	Name:     "mqtt-url",
	Usage:    "tcp://broker:port",
	EnvVars:  []string{"MQTT_URL"},
	Required: true,
}

var FlagMQTTClientID = &cli.StringFlag{
	Name:    "mqtt-client-id",
	EnvVars: []string{"MQTT_CLIENT_ID"},
	Value:   "mobilus-to-mqtt",
}

var FlagMQTTUsername = &cli.StringFlag{
	Name:    "mqtt-username",
	EnvVars: []string{"MQTT_USERNAME"},
}

var FlagMQTTPassword = &cli.StringFlag{
	Name:    "mqtt-password",
	EnvVars: []string{"MQTT_PASSWORD"},
}

var FlagMQTTTopic = &cli.StringFlag{
	Name:     "mqtt-topic",
	EnvVars:  []string{"MQTT_TOPIC"},
	Value:    "mobilus",
	Required: false,
}

var FlagMQTTDiscoveryPrefix = &cli.StringFlag{
	Name:    "mqtt-discovery-prefix",
	EnvVars: []string{"MQTT_DISCOVERY_PREFIX"},
	Value:   "homeassistant",
}

var FlagHTTPListen = &cli.StringFlag{
	Name:    "http-listen",
	Usage:   "status API and metrics address, empty disables",
	EnvVars: []string{"HTTP_LISTEN"},
	Value:   ":8080",
}

var FlagReportInterval = &cli.DurationFlag{
	Name:    "report-interval",
	EnvVars: []string{"REPORT_INTERVAL"},
	Value:   application.DefaultReportInterval,
}
