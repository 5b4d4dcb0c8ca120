package telemetry

import "go.opentelemetry.io/otel/attribute"

func attrName(name string) attribute.KeyValue {
	return attribute.String("child", name)
}

func attrMethod(method string) attribute.KeyValue {
	return attribute.String("method", method)
}
