package liberr

// Validator collects field errors before any state is touched.
type Validator struct {
	Fields map[string]string
}

func NewValidator() *Validator {
	return &Validator{Fields: make(map[string]string)}
}

// Check records message for key when ok is false. The first message per key wins.
func (v *Validator) Check(ok bool, key, message string) {
	if ok {
		return
	}
	if _, exists := v.Fields[key]; !exists {
		v.Fields[key] = message
	}
}

func (v *Validator) Valid() bool {
	return len(v.Fields) == 0
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "validation failed",
		Fields:  v.Fields,
	}
}
