// Package command builds and publishes the outbound control messages of the
// bridge: variable creation and deletion, filter creation and deletion, and
// parameter updates. It owns payload encoding and name validation; actual
// delivery goes through a narrow publisher interface so the transport can be
// faked in tests.
package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/c360/telebridge/errors"
	"github.com/c360/telebridge/metric"
	"github.com/c360/telebridge/router"
)

// publisher is the outbound half of the broker connection
type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Publisher issues control commands to the simulator over the broker
type Publisher struct {
	pub     publisher
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewPublisher creates a command publisher. metrics may be nil.
func NewPublisher(pub publisher, logger *slog.Logger, metrics *metric.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		pub:     pub,
		logger:  logger.With("component", "command"),
		metrics: metrics,
	}
}

// validateName rejects names that are empty or would break the topic grammar
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.WrapInvalid(errors.ErrInvalidName, "Command", "validateName",
			"name is empty")
	}
	if strings.ContainsAny(name, "/+#") {
		return errors.WrapInvalid(errors.ErrInvalidName, "Command", "validateName",
			"name contains topic separators or wildcards")
	}
	return nil
}

// CreateVariable announces a new simulated variable. Zero-valued numeric
// fields of spec are replaced with the simulator defaults before publishing.
func (p *Publisher) CreateVariable(ctx context.Context, spec router.VariableSpec) error {
	if err := validateName(spec.Name); err != nil {
		return err
	}
	applyDefaults(&spec)

	payload, err := json.Marshal(spec)
	if err != nil {
		return errors.WrapInvalid(err, "Command", "CreateVariable", "encode variable spec")
	}

	if err := p.publish(ctx, "create_variable", router.TopicVariableNew, payload, false); err != nil {
		return err
	}

	p.logger.Info("variable created", "name", spec.Name, "period", spec.Period)
	return nil
}

// DeleteVariable asks the simulator to stop and forget a variable
func (p *Publisher) DeleteVariable(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := p.publish(ctx, "delete_variable", router.TopicVariableDelete, []byte(name), false); err != nil {
		return err
	}

	p.logger.Info("variable deleted", "name", name)
	return nil
}

// CreateFilter attaches a filter to a variable's raw value stream. The
// announcement payload is the source topic the filter should consume.
func (p *Publisher) CreateFilter(ctx context.Context, variableName string) error {
	if err := validateName(variableName); err != nil {
		return err
	}

	source := router.ValueTopic(variableName)
	if err := p.publish(ctx, "create_filter", router.TopicFilterNew, []byte(source), false); err != nil {
		return err
	}

	p.logger.Info("filter created", "source", source)
	return nil
}

// DeleteFilter removes a filter by its full filter name
func (p *Publisher) DeleteFilter(ctx context.Context, filterName string) error {
	if strings.TrimSpace(filterName) == "" {
		return errors.WrapInvalid(errors.ErrInvalidName, "Command", "DeleteFilter",
			"filter name is empty")
	}

	if err := p.publish(ctx, "delete_filter", router.TopicFilterDelete, []byte(filterName), false); err != nil {
		return err
	}

	p.logger.Info("filter deleted", "filter", filterName)
	return nil
}

// UpdateParameter publishes a retained parameter value so the variable picks
// it up immediately and late subscribers still see the current setting.
func (p *Publisher) UpdateParameter(ctx context.Context, name, param, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateName(param); err != nil {
		return err
	}

	topic := router.ParameterTopic(name, param)
	if err := p.publish(ctx, "update_parameter", topic, []byte(value), true); err != nil {
		return err
	}

	p.logger.Info("parameter updated", "name", name, "param", param, "value", value)
	return nil
}

func (p *Publisher) publish(ctx context.Context, command, topic string, payload []byte, retain bool) error {
	if err := p.pub.Publish(ctx, topic, payload, retain); err != nil {
		return errors.Wrap(err, "Command", command, "publish "+topic)
	}
	if p.metrics != nil {
		p.metrics.RecordCommand(command)
	}
	return nil
}

func applyDefaults(spec *router.VariableSpec) {
	defaults := router.DefaultVariableSpec()
	if spec.Period <= 0 {
		spec.Period = defaults.Period
	}
	if spec.Min == 0 && spec.Max == 0 {
		spec.Min = defaults.Min
		spec.Max = defaults.Max
	}
	if spec.Noise <= 0 {
		spec.Noise = defaults.Noise
	}
	if spec.PublishPeriod <= 0 {
		spec.PublishPeriod = defaults.PublishPeriod
	}
}
