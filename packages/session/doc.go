// Package session manages asynchronous HTTP requests on behalf of callers.
//
// A Session executes Requests on its own goroutines and reports back through
// three callbacks:
//   - progress, with the bytes received so far and the expected total
//   - canceled, when the request was canceled before it finished
//   - completion, with the response, its body and any transport error
//
// Exactly one of canceled or completion runs for every submitted request.
// Every in-flight request can be canceled at once with CancelAll.
//
// Most programs use the process-wide session returned by Shared:
//
//	task := session.Shared().Execute(http.NewRequest("GET", url),
//		func(done, total int64) { ... },
//		func() { ... },
//		func(resp *http.Response, body []byte, err error) { ... },
//	)
//	...
//	session.Shared().CancelAll()
package session
