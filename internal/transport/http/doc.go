// Package http implements the HTTP handlers of the WhatsApp bot.
// Handlers stay thin: they decode and validate the request, call a service
// and render the result. Errors are converted to RFC 7807 problem details
// by the shared error handler.
//
// # Routes
//
//	/api/license/*     license status, validation and maintenance
//	/api/messages/*    WhatsApp session, sends and bulk jobs (license gated)
//	/api/health        200 when licensed and the authority answers, else 503
//	/api/stats         runtime and session statistics
//	/metrics           Prometheus scrape endpoint
//
// # Handler Structure
//
// Each handler follows this pattern:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    var req domain.SomethingRequest
//	    if err := h.validator.DecodeAndValidate(r, &req); err != nil {
//	        h.errors.HandleError(w, r, err)
//	        return
//	    }
//	    result, err := h.service.DoSomething(r.Context(), req)
//	    if err != nil {
//	        h.errors.HandleError(w, r, err)
//	        return
//	    }
//	    render.JSON(w, r, result)
//	}
//
// Long-running bulk sends answer 202 Accepted with a job ID and report
// progress over the realtime channel.
package http
