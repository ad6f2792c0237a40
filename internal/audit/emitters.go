package audit

import (
	"fmt"
	"runtime"
)

// Typed emitters map narrow, domain-specific call shapes onto Log. They
// introduce no persistence behavior of their own.

// LogLogin records an authentication attempt.
func (w *Writer) LogLogin(userID, ipAddress, userAgent string, success bool) {
	eventType := EventLoginSuccess
	severity := SeverityInfo
	result := ResultSuccess
	if !success {
		eventType = EventLoginFailure
		severity = SeverityWarning
		result = ResultFailure
	}
	w.Log(Event{
		EventType: eventType,
		Severity:  severity,
		Result:    result,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Resource:  "session",
		Action:    "login",
	})
}

// LogDataAccess records a read of a business resource.
func (w *Writer) LogDataAccess(userID, resource, resourceID string, details map[string]interface{}) {
	w.Log(Event{
		EventType:  EventDataRead,
		Severity:   SeverityInfo,
		Result:     ResultSuccess,
		UserID:     userID,
		Resource:   resource,
		ResourceID: resourceID,
		Action:     "read",
		Details:    details,
	})
}

// LogDataModification records a create, update, or delete with the
// before and after record states.
func (w *Writer) LogDataModification(userID, resource, resourceID, action string, before, after map[string]interface{}) {
	eventType := EventDataUpdate
	switch action {
	case "create":
		eventType = EventDataCreate
	case "delete":
		eventType = EventDataDelete
	}
	w.Log(Event{
		EventType:   eventType,
		Severity:    SeverityInfo,
		Result:      ResultSuccess,
		UserID:      userID,
		Resource:    resource,
		ResourceID:  resourceID,
		Action:      action,
		BeforeState: before,
		AfterState:  after,
	})
}

// LogExport records an export of business data.
func (w *Writer) LogExport(userID, resource string, details map[string]interface{}) {
	w.Log(Event{
		EventType: EventDataExport,
		Severity:  SeverityWarning,
		Result:    ResultSuccess,
		UserID:    userID,
		Resource:  resource,
		Action:    "export",
		Details:   details,
	})
}

// LogSecurityEvent records a security alert.
func (w *Writer) LogSecurityEvent(severity Severity, ipAddress string, details map[string]interface{}) {
	w.Log(Event{
		EventType: EventSecurityAlert,
		Severity:  severity,
		Result:    ResultFailure,
		IPAddress: ipAddress,
		Resource:  "security",
		Action:    "alert",
		Details:   details,
	})
}

// LogGDPREvent records a GDPR data request or deletion.
func (w *Writer) LogGDPREvent(eventType EventType, userID string, details map[string]interface{}) {
	w.Log(Event{
		EventType: eventType,
		Severity:  SeverityWarning,
		Result:    ResultSuccess,
		UserID:    userID,
		Resource:  "gdpr",
		Action:    "request",
		Details:   details,
	})
}

// LogAPIRequest records one API call against the engine.
func (w *Writer) LogAPIRequest(userID, method, path, ipAddress, userAgent string, statusCode int) {
	result := ResultSuccess
	severity := SeverityInfo
	if statusCode >= 400 {
		result = ResultFailure
		severity = SeverityWarning
	}
	w.Log(Event{
		EventType: EventDataRead,
		Severity:  severity,
		Result:    result,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Resource:  "api",
		Action:    method + " " + path,
		Details:   map[string]interface{}{"statusCode": statusCode},
	})
}

// LogError records a generic error with its stack trace.
func (w *Writer) LogError(err error, resource string, details map[string]interface{}) {
	stack := make([]byte, 4096)
	stack = stack[:runtime.Stack(stack, false)]
	w.Log(Event{
		EventType:    EventError,
		Severity:     SeverityError,
		Result:       ResultFailure,
		Resource:     resource,
		Action:       "error",
		Details:      details,
		ErrorMessage: fmt.Sprintf("%v", err),
		StackTrace:   string(stack),
	})
}
