package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"task-agent/internal/classifier"
	"task-agent/internal/observability"
	"task-agent/internal/policy"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
)

// Classifier 把指令映射为一次操作调用。
type Classifier interface {
	Classify(ctx context.Context, instruction string) (classifier.Classification, error)
}

// URLChecker 校验出站地址。
type URLChecker interface {
	CheckURL(ctx context.Context, raw string, schemes ...string) error
}

// Dispatcher 执行单条指令：删除过滤、分类、解码、沙箱检查，最后调用 handler 一次。
// 任一步失败立即返回，不重试也不回滚。
type Dispatcher struct {
	classifier Classifier
	registry   *tools.Registry
	root       sandbox.Root
	urls       URLChecker
}

func New(cls Classifier, registry *tools.Registry, root sandbox.Root, urls URLChecker) *Dispatcher {
	if urls == nil {
		urls = policy.NewNetGuard()
	}
	return &Dispatcher{
		classifier: cls,
		registry:   registry,
		root:       root,
		urls:       urls,
	}
}

// Run 分发一条指令并返回结构化结果；每次调用互不影响。
func (d *Dispatcher) Run(ctx context.Context, instruction string) tools.DispatchResult {
	requestID := uuid.NewString()
	start := time.Now()
	tools.LogDispatchRequest(requestID, instruction)

	var call tools.Call
	res := d.run(ctx, instruction, &call)

	elapsed := time.Since(start)
	tools.LogDispatchResult(requestID, call, res, elapsed)
	observability.RecordDispatch(res.Operation, outcome(res), elapsed)
	return res
}

func (d *Dispatcher) run(ctx context.Context, instruction string, call *tools.Call) tools.DispatchResult {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return fail(tools.Errorf(tools.KindArgumentValidation, "", "instruction is empty"))
	}

	if policy.ContainsDeleteIntent(instruction) {
		return fail(tools.Errorf(tools.KindDeletionIntentRejected, "",
			"deletion is not permitted (instruction mentions %q)", policy.MatchedDeleteWord(instruction)))
	}

	cls, err := d.classifier.Classify(ctx, instruction)
	*call = tools.Call{ID: cls.CallID, Name: cls.Operation, Payload: cls.Arguments}
	if err != nil {
		switch {
		case errors.Is(err, classifier.ErrUnknownOperation):
			return fail(d.unknownOperation(cls.Operation))
		case errors.Is(err, classifier.ErrAmbiguous):
			return fail(tools.NewError(tools.KindAmbiguousInstruction, "", err,
				"could not determine a single operation for this instruction"))
		default:
			return fail(tools.NewError(tools.KindClassifierUnavailable, "", err, ""))
		}
	}

	spec, ok := d.registry.Lookup(cls.Operation)
	if !ok {
		return fail(d.unknownOperation(cls.Operation))
	}

	args, err := spec.Schema.Decode(cls.Arguments)
	if err != nil {
		return fail(tools.NewError(tools.KindArgumentValidation, spec.Name, err, ""))
	}

	if err := d.checkSandbox(ctx, spec, args); err != nil {
		return fail(err)
	}

	inv := tools.Invocation{
		Call:        *call,
		Args:        args,
		Root:        d.root,
		Instruction: instruction,
	}
	res, err := invoke(ctx, spec, inv)
	if err != nil {
		return fail(err)
	}
	return tools.FromResult(spec.Name, call.ID, res)
}

// checkSandbox 依次检查路径、查询与 URL 参数。
func (d *Dispatcher) checkSandbox(ctx context.Context, spec tools.OperationSpec, args tools.Args) error {
	for _, p := range spec.Schema.OfKind(tools.PathParam) {
		if !args.Has(p.Name) {
			continue
		}
		if _, err := d.root.Resolve(args.String(p.Name)); err != nil {
			return tools.NewError(tools.KindSandboxViolation, spec.Name, err,
				fmt.Sprintf("%s: %v", p.Name, err))
		}
	}
	for _, p := range spec.Schema.OfKind(tools.QueryParam) {
		if !args.Has(p.Name) {
			continue
		}
		if err := policy.CheckReadOnlyQuery(args.String(p.Name)); err != nil {
			return tools.NewError(tools.KindSandboxViolation, spec.Name, err,
				fmt.Sprintf("%s: %v", p.Name, err))
		}
	}
	for _, p := range spec.Schema.OfKind(tools.URLParam) {
		if !args.Has(p.Name) {
			continue
		}
		if err := d.urls.CheckURL(ctx, args.String(p.Name), p.Schemes...); err != nil {
			return tools.NewError(tools.KindSandboxViolation, spec.Name, err,
				fmt.Sprintf("%s: %v", p.Name, err))
		}
	}
	return nil
}

func (d *Dispatcher) unknownOperation(name string) *tools.DispatchError {
	if name == "" {
		return tools.Errorf(tools.KindUnknownOperation, "", "classifier selected no known operation")
	}
	if suggestion := closestName(name, d.registry.Names()); suggestion != "" {
		return tools.Errorf(tools.KindUnknownOperation, name, "unknown operation %q (did you mean %q?)", name, suggestion)
	}
	return tools.Errorf(tools.KindUnknownOperation, name, "unknown operation %q", name)
}

func closestName(name string, names []string) string {
	matches := fuzzy.Find(strings.ToLower(name), names)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// invoke 同步调用 handler 一次；返回的错误或 panic 统一归为 handler_failure，
// 除非 handler 自己返回了已分类的 DispatchError。
func invoke(ctx context.Context, spec tools.OperationSpec, inv tools.Invocation) (res tools.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			tools.LogHandlerPanic(spec.Name, r, debug.Stack())
			err = tools.Errorf(tools.KindHandlerFailure, spec.Name, "handler panicked: %v", r)
		}
	}()

	res, err = spec.Handler.Handle(ctx, inv)
	if err != nil {
		if de, ok := tools.AsDispatchError(err); ok {
			if de.Operation == "" {
				de.Operation = spec.Name
			}
			return tools.Result{}, de
		}
		return tools.Result{}, tools.NewError(tools.KindHandlerFailure, spec.Name, err, "")
	}
	return res, nil
}

func fail(err error) tools.DispatchResult {
	return tools.FromError(err)
}

func outcome(res tools.DispatchResult) string {
	switch {
	case res.Err != nil:
		return string(res.Kind)
	case res.Status == tools.StatusError:
		return "refused"
	default:
		return "success"
	}
}
