package domain

// Webhook reply operation kinds accepted by the commerce platform.
const (
	OpAdd       = "add"
	OpReplace   = "replace"
	OpRemove    = "remove"
	OpSuccess   = "success"
	OpException = "exception"
)

// Operation is one JSON-Patch style mutation returned from a webhook.
// Instance tags the platform class to instantiate for "add" values.
type Operation struct {
	Op       string      `json:"op"`
	Path     string      `json:"path,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Instance string      `json:"instance,omitempty"`
}

// ExceptionReply is the platform's error envelope. Webhook errors always
// travel in an HTTP 200 body.
type ExceptionReply struct {
	Op      string `json:"op"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// Success returns the platform's no-op acknowledgement.
func Success() ExceptionReply {
	return ExceptionReply{Op: OpSuccess}
}

// Exception returns an exception reply with the given type tag and
// user-visible message.
func Exception(typeTag, message string) ExceptionReply {
	return ExceptionReply{Op: OpException, Type: typeTag, Message: message}
}

// Add builds an "add" operation.
func Add(path string, value interface{}, instance string) Operation {
	return Operation{Op: OpAdd, Path: path, Value: value, Instance: instance}
}

// Replace builds a "replace" operation.
func Replace(path string, value interface{}) Operation {
	return Operation{Op: OpReplace, Path: path, Value: value}
}
