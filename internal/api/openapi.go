package api

type route struct {
	method  string
	path    string
	summary string
	public  bool
}

var documentedRoutes = []route{
	{method: "get", path: "/healthz", summary: "Liveness, queue depth and whether a job is running", public: true},
	{method: "get", path: "/status", summary: "Running job and queue length"},
	{method: "get", path: "/queue", summary: "Pending requests in arrival order"},
	{method: "get", path: "/history", summary: "Recently finished jobs, newest first"},
	{method: "post", path: "/cancel", summary: "Kill the running job and clear the queue"},
	{method: "get", path: "/events", summary: "Lifecycle events as Server-Sent Events"},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the operator API.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}
	for _, rt := range documentedRoutes {
		op := map[string]any{
			"summary": rt.summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
			},
		}
		if !rt.public {
			op["security"] = []any{map[string]any{"BearerAuth": []string{}}}
			op["responses"].(map[string]any)["401"] = map[string]any{"description": "Missing or invalid API key"}
		}
		if rt.path == "/cancel" {
			op["responses"].(map[string]any)["409"] = map[string]any{"description": "Nothing running"}
		}
		paths[rt.path] = map[string]any{rt.method: op}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "claudegram operator API",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
