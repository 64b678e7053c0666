package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// ToolDefinition represents a tool that can be called by the model
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Function    ToolFunc           `json:"-"`

	validator *gojsonschema.Schema
}

// ToolFunc wraps the actual function
type ToolFunc struct {
	Fn          interface{}
	executorCtx func(context.Context, []byte) (interface{}, error)
	inputType   reflect.Type
	outputType  reflect.Type
}

// NewToolFromFunc creates a ToolDefinition from a Go function of the form
// func(Input) (Result, error) or func(context.Context, Input) (Result, error).
func NewToolFromFunc(name, description string, fn interface{}) (*ToolDefinition, error) {
	// names are written by the model as Tool: name(...), so they stay snake_case
	if name == "" || strcase.ToSnake(name) != name {
		return nil, errors.Errorf("tool name %q must be snake_case", name)
	}

	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}

	if funcType.NumOut() == 0 || funcType.NumOut() > 2 {
		return nil, errors.New("function must return (result) or (result, error)")
	}
	if funcType.NumOut() == 2 {
		errorType := reflect.TypeOf((*error)(nil)).Elem()
		if !funcType.Out(1).Implements(errorType) {
			return nil, errors.New("second return value must be an error")
		}
	}

	var inType reflect.Type
	withContext := false
	switch funcType.NumIn() {
	case 1:
		inType = funcType.In(0)
	case 2:
		if funcType.In(0) != contextType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		inType = funcType.In(1)
		withContext = true
	default:
		return nil, errors.New("function must take exactly one parameter (Input) or (context.Context, Input)")
	}
	if inType.Kind() != reflect.Struct {
		return nil, errors.Errorf("tool input must be a struct, got %s", inType)
	}

	schema := generateSchema(inType)
	validator, err := compileValidator(schema)
	if err != nil {
		return nil, errors.Wrapf(err, "could not compile argument schema for %s", name)
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function: ToolFunc{
			Fn:          fn,
			executorCtx: createExecutor(fn, funcType, inType, withContext),
			inputType:   inType,
			outputType:  funcType.Out(0),
		},
		validator: validator,
	}, nil
}

// ExecuteWithContext decodes the JSON arguments into the tool input and calls the function.
func (tf *ToolFunc) ExecuteWithContext(ctx context.Context, args []byte) (interface{}, error) {
	if tf.executorCtx == nil {
		return nil, errors.New("tool function not properly initialized")
	}
	return tf.executorCtx(ctx, args)
}

// ValidateArguments checks a JSON argument object against the tool's parameter schema.
func (t *ToolDefinition) ValidateArguments(args []byte) error {
	if t.validator == nil {
		return nil
	}
	res, err := t.validator.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return errors.Wrap(err, "could not validate arguments")
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Errorf("invalid arguments for %s: %s", t.Name, strings.Join(msgs, "; "))
}

// Invoke runs the tool with the string arguments extracted from a model reply.
func (t *ToolDefinition) Invoke(ctx context.Context, args map[string]string) (interface{}, error) {
	if args == nil {
		args = map[string]string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode arguments")
	}
	if err := t.ValidateArguments(b); err != nil {
		return nil, err
	}

	log.Debug().Str("tool", t.Name).RawJSON("args", b).Msg("tools: invoking")
	return t.Function.ExecuteWithContext(ctx, b)
}

func generateSchema(inputType reflect.Type) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(reflect.New(inputType).Elem().Interface())

	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}

	return schema
}

// compileValidator strips the draft 2020-12 markers gojsonschema does not understand.
func compileValidator(schema *jsonschema.Schema) (*gojsonschema.Schema, error) {
	s := *schema
	s.Version = ""
	s.ID = ""
	b, err := json.Marshal(&s)
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
}

func createExecutor(
	fn interface{},
	funcType reflect.Type,
	inType reflect.Type,
	withContext bool,
) func(context.Context, []byte) (interface{}, error) {
	funcValue := reflect.ValueOf(fn)

	return func(ctx context.Context, args []byte) (interface{}, error) {
		input := reflect.New(inType).Interface()
		if len(args) > 0 {
			if err := json.Unmarshal(args, input); err != nil {
				log.Error().
					Err(err).
					Str("input_type", inType.String()).
					Str("args", string(args)).
					Msg("tools: failed to unmarshal arguments")
				return nil, errors.Wrap(err, "failed to unmarshal arguments")
			}
		}

		in := []reflect.Value{reflect.ValueOf(input).Elem()}
		if withContext {
			in = append([]reflect.Value{reflect.ValueOf(ctx)}, in...)
		}
		return extractResults(funcValue.Call(in))
	}
}

func extractResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		result := results[0].Interface()
		errInterface := results[1].Interface()
		if errInterface == nil {
			return result, nil
		}
		if err, ok := errInterface.(error); ok {
			return result, err
		}
		return result, errors.Errorf("unexpected error type: %T", errInterface)
	default:
		return nil, errors.Errorf("unexpected number of return values: %d", len(results))
	}
}
