// Package mqtt provides MQTT client connectivity for Gray Logic Video.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees and a 1MB payload limit
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) on the camera's status topic
//
// # Architecture
//
// The video relay publishes each camera's records, schema and status on
// the Gray Logic bus and listens for streaming commands:
//
//	Axis camera → video output → relay → MQTT broker → consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.VideoStatus(cameraID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.VideoFrame(cameraID)
//	client.Publish(topic, encoded, 0, false)
package mqtt
