// Package mqtt provides the broker connection for the change feed.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Acknowledged publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Topic naming for store changes
//
// # Architecture
//
// dealer-core does not sync anything itself. Writes land in the sync log,
// the change feed relay publishes them, and whatever sync service the
// dealer runs subscribes to them.
//
//	Store → sync_log → changefeed.Relay → MQTT Broker → sync service
//
// # Topics
//
//	<prefix>/system/status                  retained online/offline
//	<prefix>/changes/<tenant|shared>/<type> one message per change
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) for any broker off the local machine
//   - Payloads carry ids only, never customer fields
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.ChangeFeed.MQTT, mqtt.Topics{Prefix: cfg.ChangeFeed.TopicPrefix})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Change("user-1", "deal")
//	err = client.PublishJSON(topic, msg)
package mqtt
