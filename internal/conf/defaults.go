// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "WildGuard-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "wildguard.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("stream.readbuffersize", 4096)
	viper.SetDefault("stream.writebuffersize", 16384)
	viper.SetDefault("stream.sendtimeoutms", 1000)
	viper.SetDefault("stream.keepaliveseconds", 1)
	viper.SetDefault("stream.maxclipbytes", 64*1024*1024)
	viper.SetDefault("stream.artifactringsize", 8)

	viper.SetDefault("inference.backendurl", "http://localhost:9000")
	viper.SetDefault("inference.workers", 2)
	viper.SetDefault("inference.requesttimeoutms", 5000)
	viper.SetDefault("inference.drawthreshold", 0.25)

	viper.SetDefault("throttle.initialinterval", 15)
	viper.SetDefault("throttle.mininterval", 5)
	viper.SetDefault("throttle.maxinterval", 30)
	viper.SetDefault("throttle.forceafterms", 2000)
	viper.SetDefault("throttle.slowthresholdms", 100.0)
	viper.SetDefault("throttle.fastthresholdms", 30.0)
	viper.SetDefault("throttle.growstep", 5)
	viper.SetDefault("throttle.shrinkstep", 1)
	viper.SetDefault("throttle.viewerlatencyhigh", 150.0)
	viper.SetDefault("throttle.viewerlatencylow", 50.0)

	viper.SetDefault("alerts.cooldownminutes", 5)
	viper.SetDefault("alerts.dangerousthreshold", 0.50)
	viper.SetDefault("alerts.endangeredthreshold", 0.50)
	viper.SetDefault("alerts.officialrecipients", []string{})

	viper.SetDefault("alerts.voice.enabled", false)
	viper.SetDefault("alerts.voice.baseurl", "https://app.tingting.io")
	viper.SetDefault("alerts.voice.campaignid", "")
	viper.SetDefault("alerts.voice.token", "")
	viper.SetDefault("alerts.voice.timeoutms", 10000)

	viper.SetDefault("alerts.message.enabled", false)
	viper.SetDefault("alerts.message.baseurl", "https://graph.facebook.com/v22.0")
	viper.SetDefault("alerts.message.phonenumberid", "")
	viper.SetDefault("alerts.message.token", "")
	viper.SetDefault("alerts.message.templatename", "species_alert")
	viper.SetDefault("alerts.message.languagecode", "hi")
	viper.SetDefault("alerts.message.timeoutms", 30000)
	viper.SetDefault("alerts.message.rateperminute", 60)

	viper.SetDefault("alerts.push.enabled", false)
	viper.SetDefault("alerts.push.urls", []string{})

	viper.SetDefault("alerts.evidence.path", "recordings/")
	viper.SetDefault("alerts.evidence.maxvideomb", 15)
	viper.SetDefault("alerts.evidence.uses3", false)
	viper.SetDefault("alerts.evidence.s3endpoint", "localhost:9000")
	viper.SetDefault("alerts.evidence.s3bucket", "evidence")
	viper.SetDefault("alerts.evidence.s3accesskey", "")
	viper.SetDefault("alerts.evidence.s3secretkey", "")
	viper.SetDefault("alerts.evidence.s3usessl", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "webserver.log")

	viper.SetDefault("directory.path", "cameras.db")
}
