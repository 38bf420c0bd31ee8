// Package events carries hub activity from the relay, BLE transport and
// MQTT ingress to the presentation shell and the websocket stream.
//
// Producers call Bus.Publish from any goroutine. Each consumer owns one
// buffered subscription and drains it on its own goroutine; a consumer
// that falls behind loses events rather than blocking producers.
package events
