package router

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/c360/telebridge/errors"
)

// Class identifies what kind of message arrived on a topic
type Class int

// Message classes in the topic grammar
const (
	ClassUnknown Class = iota
	ClassRawSample
	ClassFilteredSample
	ClassEntityAdded
	ClassEntityRemoved
	ClassFilterAdded
	ClassFilterRemoved
	ClassParameterChanged
)

// String returns the string representation of a message class
func (c Class) String() string {
	switch c {
	case ClassRawSample:
		return "raw_sample"
	case ClassFilteredSample:
		return "filtered_sample"
	case ClassEntityAdded:
		return "entity_added"
	case ClassEntityRemoved:
		return "entity_removed"
	case ClassFilterAdded:
		return "filter_added"
	case ClassFilterRemoved:
		return "filter_removed"
	case ClassParameterChanged:
		return "parameter_changed"
	default:
		return "unknown"
	}
}

// Message is the typed result of classifying an inbound (topic, payload) pair.
// Which fields are populated depends on Class.
type Message struct {
	Class Class

	Name     string  // variable name (samples, removal, parameters)
	FilterID string  // filtered samples only
	Value    float64 // numeric payload of sample classes

	Param      string // parameter name (ClassParameterChanged)
	ParamValue string // parameter value as published

	Variable    *VariableSpec // ClassEntityAdded
	SourceTopic string        // ClassFilterAdded: topic reference to filter
	FilterName  string        // ClassFilterRemoved
}

// SeriesKey returns the series key a sample message belongs to, or "" for
// non-sample classes.
func (m Message) SeriesKey() string {
	switch m.Class {
	case ClassRawSample:
		return RawSeriesKey(m.Name)
	case ClassFilteredSample:
		return FilteredSeriesKey(m.Name, m.FilterID)
	default:
		return ""
	}
}

// VariableSpec is the structured payload announcing a new simulated variable.
// Fields omitted from the JSON keep the simulator defaults.
type VariableSpec struct {
	Name          string  `json:"name"`
	Period        float64 `json:"period"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Noise         float64 `json:"noise"`
	PublishPeriod float64 `json:"period_publish"`
}

// DefaultVariableSpec returns a spec carrying the simulator defaults
func DefaultVariableSpec() VariableSpec {
	return VariableSpec{
		Period:        60.0,
		Min:           15.0,
		Max:           61.0,
		Noise:         5.0,
		PublishPeriod: 0.5,
	}
}

const filteredValueMarker = "value_filtered_"

// Classify maps an inbound (topic, payload) pair onto a message class and
// extracts its identifiers. It is a pure function over the fixed grammar:
//
//	simulateur/<name>/value                     -> ClassRawSample
//	simulateur/<name>/value_filtered_<filterId> -> ClassFilteredSample
//	simulateur/new                              -> ClassEntityAdded
//	simulateur/delete                           -> ClassEntityRemoved
//	Filter/new                                  -> ClassFilterAdded
//	Filter/delete                               -> ClassFilterRemoved
//	simulateur/<name>/parameters/<param>        -> ClassParameterChanged
//
// Unparseable payloads return ErrMalformedPayload, empty retained-clear
// payloads return ErrEmptyPayload, and topics outside the grammar return
// ErrUnhandledTopic. Callers drop all three without interrupting the stream.
func Classify(topic string, payload []byte) (Message, error) {
	switch topic {
	case TopicVariableNew:
		return classifyVariableNew(payload)
	case TopicVariableDelete:
		return classifyNamePayload(ClassEntityRemoved, payload)
	case TopicFilterNew:
		return classifyFilterNew(payload)
	case TopicFilterDelete:
		return classifyNamePayload(ClassFilterRemoved, payload)
	}

	parts := strings.Split(topic, "/")
	if parts[0] != "simulateur" || len(parts) < 2 || parts[1] == "" {
		return Message{}, errors.ErrUnhandledTopic
	}

	switch {
	case len(parts) == 3 && parts[2] == "value":
		return classifySample(ClassRawSample, parts[1], "", payload)

	case len(parts) == 3 && strings.HasPrefix(parts[2], filteredValueMarker):
		filterID := parts[2][len(filteredValueMarker):]
		if filterID == "" {
			return Message{}, errors.ErrUnhandledTopic
		}
		return classifySample(ClassFilteredSample, parts[1], filterID, payload)

	case len(parts) == 4 && parts[2] == "parameters":
		if len(payload) == 0 {
			// Retained-clear published by the simulator on variable deletion
			return Message{}, errors.ErrEmptyPayload
		}
		return Message{
			Class:      ClassParameterChanged,
			Name:       parts[1],
			Param:      parts[3],
			ParamValue: string(payload),
		}, nil
	}

	return Message{}, errors.ErrUnhandledTopic
}

func classifySample(class Class, name, filterID string, payload []byte) (Message, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Message{}, errors.ErrEmptyPayload
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Router", "Classify",
			"parse numeric payload")
	}

	return Message{
		Class:    class,
		Name:     name,
		FilterID: filterID,
		Value:    value,
	}, nil
}

func classifyVariableNew(payload []byte) (Message, error) {
	spec := DefaultVariableSpec()
	if err := json.Unmarshal(payload, &spec); err != nil {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Router", "Classify",
			"parse variable announcement")
	}
	if strings.TrimSpace(spec.Name) == "" {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Router", "Classify",
			"variable announcement missing name")
	}

	return Message{
		Class:    ClassEntityAdded,
		Name:     spec.Name,
		Variable: &spec,
	}, nil
}

func classifyFilterNew(payload []byte) (Message, error) {
	source := strings.TrimSpace(string(payload))
	if source == "" {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Router", "Classify",
			"filter announcement missing source topic")
	}

	return Message{
		Class:       ClassFilterAdded,
		SourceTopic: source,
	}, nil
}

func classifyNamePayload(class Class, payload []byte) (Message, error) {
	name := strings.TrimSpace(string(payload))
	if name == "" {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Router", "Classify",
			"removal missing name")
	}

	msg := Message{Class: class}
	if class == ClassFilterRemoved {
		msg.FilterName = name
	} else {
		msg.Name = name
	}
	return msg, nil
}
