// Package router implements the topic grammar of the telemetry bridge: it
// owns the topic constants and builders, and classifies inbound
// (topic, payload) pairs into typed messages. Classification is pure logic
// with no transport dependency, so it can be tested against literal strings.
package router

import "fmt"

// Fixed control topics (exact, case-sensitive)
const (
	TopicVariableNew    = "simulateur/new"
	TopicVariableDelete = "simulateur/delete"
	TopicFilterNew      = "Filter/new"
	TopicFilterDelete   = "Filter/delete"
)

// Subscription patterns installed by the bridge. The set is fixed: it is
// identical across reconnects and idempotent to re-subscribe.
func SubscriptionPatterns() []string {
	return []string{
		"simulateur/+/value",
		"simulateur/+/value_filtered_#",
		TopicVariableNew,
		TopicVariableDelete,
		TopicFilterNew,
		TopicFilterDelete,
		"simulateur/+/parameters/#",
	}
}

// ValueTopic returns the raw value topic for a variable
func ValueTopic(name string) string {
	return fmt.Sprintf("simulateur/%s/value", name)
}

// FilteredValueTopic returns the filtered value topic for a variable/filter pair
func FilteredValueTopic(name, filterID string) string {
	return fmt.Sprintf("simulateur/%s/value_filtered_%s", name, filterID)
}

// ParameterTopic returns the parameter topic for a variable
func ParameterTopic(name, param string) string {
	return fmt.Sprintf("simulateur/%s/parameters/%s", name, param)
}

// RawSeriesKey returns the series key holding raw samples for a variable
func RawSeriesKey(name string) string {
	return name + "_raw"
}

// FilteredSeriesKey returns the series key holding filtered samples
func FilteredSeriesKey(name, filterID string) string {
	return name + "_filtered_" + filterID
}

// SeriesKeyPrefix returns the prefix shared by every series key belonging to
// a variable. Used to remove all of a variable's series on deletion.
func SeriesKeyPrefix(name string) string {
	return name + "_"
}
