// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "ZombieWatch-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/zombiewatch.log")

	viper.SetDefault("detector.modelpath", "models/yolov8n.tflite")
	viper.SetDefault("detector.confidence", 0.45)
	viper.SetDefault("detector.targetclasses", []int{0})
	viper.SetDefault("detector.usexnnpack", true)
	viper.SetDefault("detector.threads", 0)

	viper.SetDefault("classifier.enabled", true)
	viper.SetDefault("classifier.modelpath", "models/scene_classifier.tflite")
	viper.SetDefault("classifier.presencethreshold", 0.7)

	viper.SetDefault("watcher.display", 0)
	viper.SetDefault("watcher.followupdelayms", 500)
	viper.SetDefault("watcher.processingtime", false)

	viper.SetDefault("watcher.performance.mode", "")
	viper.SetDefault("watcher.performance.interval", 0.3)
	viper.SetDefault("watcher.performance.resizefactor", 0.65)
	viper.SetDefault("watcher.performance.skipratio", 1)
	viper.SetDefault("watcher.performance.cputhreshold", 80)
	viper.SetDefault("watcher.performance.checkinterval", 10)

	viper.SetDefault("watcher.history.size", 3)
	viper.SetDefault("watcher.history.requireddetections", 1)

	viper.SetDefault("watcher.artifacts.enabled", false)
	viper.SetDefault("watcher.artifacts.path", "data/detections")
	viper.SetDefault("watcher.artifacts.maxperday", 100)
	viper.SetDefault("watcher.artifacts.maxusagemb", 500)
	viper.SetDefault("watcher.artifacts.sweepminutes", 15)

	viper.SetDefault("notification.globalmininterval", 5)
	viper.SetDefault("notification.sourcemininterval", 1)
	viper.SetDefault("notification.cooldowns.few", 30)
	viper.SetDefault("notification.cooldowns.warning", 40)
	viper.SetDefault("notification.cooldowns.many", 30)
	viper.SetDefault("notification.maxstored", 1000)

	viper.SetDefault("notification.mqtt.enabled", false)
	viper.SetDefault("notification.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notification.mqtt.topic", "zombiewatch/alerts")
	viper.SetDefault("notification.mqtt.username", "")
	viper.SetDefault("notification.mqtt.password", "")

	viper.SetDefault("voice.enabled", true)
	viper.SetDefault("voice.host", "localhost")
	viper.SetDefault("voice.port", 50021)
	viper.SetDefault("voice.speakerid", 1)
	viper.SetDefault("voice.requesttimeout", 5)
	viper.SetDefault("voice.cachettlminutes", 60)
	viper.SetDefault("voice.duplicatewindow", 5)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "zombiewatch.db")
	viper.SetDefault("output.log.enabled", true)
	viper.SetDefault("output.log.path", "logs/")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8735")
}
