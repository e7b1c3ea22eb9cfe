// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PestGuard")
	viper.SetDefault("main.timezone", "UTC")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "pestguard.log")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", time.Sunday)

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "pestguard.db")

	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "pestguard")
	viper.SetDefault("database.mysql.password", "secret")
	viper.SetDefault("database.mysql.database", "pestguard")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)

	viper.SetDefault("cameras.integrations", []IntegrationConfig{})

	viper.SetDefault("media.snapshotsdir", "snapshots/")
	viper.SetDefault("media.videosdir", "videos/")
	viper.SetDefault("media.cachedir", "cache/")
	viper.SetDefault("media.videoduration", 15)
	viper.SetDefault("media.videoretentiondays", 7)
	viper.SetDefault("media.maxusage", "90%")

	viper.SetDefault("detect.provider", "openai")
	viper.SetDefault("detect.model", "gpt-4o-mini")
	viper.SetDefault("detect.endpoint", "")
	viper.SetDefault("detect.timeout", 60)

	viper.SetDefault("deterrents.soundsdir", "sounds/")
	viper.SetDefault("deterrents.maxplaybackseconds", 10)
	viper.SetDefault("deterrents.quiethours.enabled", false)
	viper.SetDefault("deterrents.quiethours.mode", "sun")
	viper.SetDefault("deterrents.quiethours.latitude", 0.000)
	viper.SetDefault("deterrents.quiethours.longitude", 0.000)
	viper.SetDefault("deterrents.quiethours.start", "22:00")
	viper.SetDefault("deterrents.quiethours.end", "06:00")

	viper.SetDefault("ratelimit.requestspersecond", 2.0)
	viper.SetDefault("ratelimit.burst", 2)

	viper.SetDefault("ops.enabled", false)
	viper.SetDefault("ops.listen", "0.0.0.0:8090")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topicprefix", "pestguard")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.minintervalseconds", 300)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
