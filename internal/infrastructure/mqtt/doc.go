// Package mqtt provides MQTT client connectivity for the SHSF hub.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing and topic subscriptions
//   - Retained online/offline status with Last Will and Testament
//   - Topic naming under a configurable namespace
//
// # Architecture
//
// The broker is the hub's remote interface. Layout clients publish
// commands and read responses; the hub relays them to the BLE peripheral.
//
//	Remote clients ↔ MQTT Broker ↔ SHSF Hub ↔ BLE peripheral
//
// # Security Considerations
//
// Topics carry no authentication. Restrict access with broker ACLs and
// enable TLS (cfg.Broker.TLS) when the broker is not on the hub itself.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Namespace: "shsf"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 0,
//	    func(topic string, payload []byte) error {
//	        sender := mqtt.SenderFromTopic(topic)
//	        ...
//	    })
//
//	client.Publish(client.Topics().Responses("alice"), []byte("OK"), 0, false)
package mqtt
