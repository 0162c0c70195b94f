package natives

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/diag"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Linker binds extern functions to host bindings and records the result
// in the symbol table.
type Linker struct {
	symbols   *symbols.Table
	registry  *Registry
	cache     *Cache
	validator *InteropValidator
	diags     *diag.Collector
}

// NewLinker returns a linker. diags may be nil.
func NewLinker(t *symbols.Table, r *Registry, c *Cache, diags *diag.Collector) *Linker {
	return &Linker{
		symbols:   t,
		registry:  r,
		cache:     c,
		validator: NewInteropValidator(r),
		diags:     diags,
	}
}

// Validator returns the linker's interop validator.
func (l *Linker) Validator() *InteropValidator {
	return l.validator
}

// Link resolves every extern function of m. Module functions try their
// interop declaration first and then the cache; attached functions of
// object and service types only use the cache. Every failure is reported
// and the combined error is fatal for the build.
func (l *Linker) Link(m *ir.Module, entry bool) error {
	l.validator.SetEntryModuleValidation(entry)

	var errs []error
	for _, fn := range m.Functions {
		if !fn.Extern() {
			continue
		}
		if err := l.bind(m, fn, fn.Name, true); err != nil {
			errs = append(errs, err)
		}
	}
	for _, td := range m.TypeDefs {
		if td.Kind == ir.TypeRecord {
			continue
		}
		for _, fn := range td.Functions {
			if !fn.Extern() {
				continue
			}
			if err := l.bind(m, fn, symbols.AttachedName(td.Name, fn.Name), false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Combine(errs...)
}

func (l *Linker) bind(m *ir.Module, fn *ir.Function, name string, interop bool) error {
	entry, ok := l.symbols.Lookup(m.ID, name)
	if !ok || entry.Function != fn {
		return errors.IllegalState(errors.PhaseLink, "extern "+name+" was not partitioned")
	}
	key := CacheKey(m.ID, name)

	var binding *Binding
	if interop && fn.Interop != nil {
		b, err := l.validator.Validate(fn)
		switch {
		case err == nil:
			binding = b
		case isNotFound(err):
			Logger().Debug("interop binding missing, trying cache",
				zap.String("function", key),
				zap.String("namespace", fn.Interop.Namespace),
				zap.String("name", fn.Interop.Name))
		default:
			l.report(fn.Pos, diag.InteropValidation, err.Error())
			return err
		}
	}
	if binding == nil {
		if b, ok := l.cache.Lookup(key); ok {
			binding = b
		}
	}
	if binding == nil {
		err := errors.NativeNotAvailable(key)
		err.Module = m.ID.String()
		l.report(fn.Pos, diag.NativeNotAvailable, err.Detail)
		return err
	}

	entry.Native = &symbols.Native{Namespace: binding.Namespace, Name: binding.Name}
	Logger().Debug("native bound",
		zap.String("function", key),
		zap.String("binding", binding.Key()))
	return nil
}

func (l *Linker) report(pos *ir.Position, code diag.Code, msg string) {
	if l.diags != nil {
		l.diags.Errorf(pos, code, "%s", msg)
	}
}

func isNotFound(err error) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindNotFound
}
