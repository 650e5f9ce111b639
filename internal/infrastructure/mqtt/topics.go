package mqtt

// Topic roots of the catspaw MQTT surface.
//
// Inbound commands and outbound state use the flat scheme
// catspaw/{category}/{target}[/{name}].
const (
	TopicPrefix       = "catspaw"
	TopicPrefixSystem = TopicPrefix + "/system"
	TopicPrefixUI     = TopicPrefix + "/ui"
)

// Topics provides builders for catspaw MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.AVRCommand("volume") // "catspaw/command/avr/volume"
type Topics struct{}

// AVRCommand returns the topic a receiver command is sent on.
//
// Example: catspaw/command/avr/volume
func (Topics) AVRCommand(command string) string {
	return TopicPrefix + "/command/avr/" + command
}

// AVRAck returns the acknowledgement topic for a receiver command.
//
// Example: catspaw/ack/avr/volume
func (Topics) AVRAck(command string) string {
	return TopicPrefix + "/ack/avr/" + command
}

// AVRState returns the retained receiver state topic.
func (Topics) AVRState() string {
	return TopicPrefix + "/state/avr"
}

// SystemPower returns the topic carrying host suspend/resume events.
func (Topics) SystemPower() string {
	return TopicPrefix + "/command/system/power"
}

// SystemStatus returns the retained online/offline topic, also used as
// the Last Will.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// UIVolumePopup returns the topic toggling the on-screen volume popup.
func (Topics) UIVolumePopup() string {
	return TopicPrefixUI + "/volume_popup"
}

// AllAVRCommands matches every receiver command topic.
//
// Pattern: catspaw/command/avr/+
func (Topics) AllAVRCommands() string {
	return TopicPrefix + "/command/avr/+"
}

// AllTopics matches all catspaw traffic.
//
// Pattern: catspaw/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// LastSegment returns the final level of topic, e.g. the command name of
// an AVRCommand topic.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
