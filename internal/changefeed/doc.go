// Package changefeed publishes the store's sync log over MQTT.
//
// Every store write appends a row to sync_log in the same transaction.
// The Relay reads unsynced rows in id order, publishes each as a JSON
// message on <prefix>/changes/<tenant|shared>/<entity_type> and then
// stamps the published rows as synced. The database connection is never
// held while talking to the broker.
//
// Delivery is at-least-once: a crash between publishing and marking
// republishes the batch on the next run. Consumers deduplicate on id.
package changefeed
