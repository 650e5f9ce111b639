// Package mqtt connects catspaw to an MQTT broker.
//
// Home automation systems drive the receiver by publishing on
// catspaw/command/avr/{command}; catspaw answers on
// catspaw/ack/avr/{command} and keeps the retained receiver state on
// catspaw/state/avr. A retained online/offline message on
// catspaw/system/status, backed by a Last Will, tells subscribers
// whether the daemon is alive.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllAVRCommands(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        return handle(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
