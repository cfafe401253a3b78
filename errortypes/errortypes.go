package errortypes

// Timeout should be used to flag that a remote call failed to return a response
// before the configured timeout timer expired.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the external request).
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by a remote
// server returning an unexpected response.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// MalformedAcct should be used when the retrieved account config cannot be unmarshaled
// or fails validation and a default had to be substituted.
type MalformedAcct struct {
	Message string
}

func (err *MalformedAcct) Error() string {
	return err.Message
}

func (err *MalformedAcct) Code() int {
	return MalformedAcctErrorCode
}

func (err *MalformedAcct) Severity() Severity {
	return SeverityFatal
}

// Warning is a generic non-fatal error with an attached warning code.
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}
