// Package mqtt provides the MQTT broker connection used by the mqtt
// replication strategy.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained publishing of record file snapshots
//   - Last Will and Testament (LWT) so subscribers see the bot go offline
//   - Connection health monitoring
//
// # Topics
//
//	tempkey/store/<name>    retained snapshot of the record file
//	tempkey/system/status   retained online/offline status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.StoreSnapshot("tempkey"), content)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost; the
//     snapshot carries device passwords
//   - Restrict the tempkey/store/# topic with broker ACLs
package mqtt
