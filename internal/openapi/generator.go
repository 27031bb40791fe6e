// Package openapi generates the OpenAPI 3.1 document describing keygate's
// HTTP surface. The document is built programmatically rather than kept as a
// static file alongside the handlers.
package openapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI document for the key service.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate API",
			Description: "Single-use, time-limited access keys with hardware-identity binding.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	registerSchemas(doc)

	doc.Paths = openapi3.NewPaths()
	addKeyPaths(doc)
	addAdminPaths(doc)

	return doc
}

func registerSchemas(doc *openapi3.T) {
	doc.Components.Schemas["Error"] = objectSchema(map[string]*openapi3.SchemaRef{
		"error": stringSchema(),
	})

	doc.Components.Schemas["CreateKeyResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"success":    boolSchema(),
		"key":        stringSchema(),
		"expiration": int64Schema(),
		"duration":   stringSchema(),
	})

	doc.Components.Schemas["BulkCreateResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"success": boolSchema(),
		"count":   intSchema(),
		"keys":    arraySchema(stringSchema()),
	})

	doc.Components.Schemas["VerifyResult"] = objectSchema(map[string]*openapi3.SchemaRef{
		"valid":      boolSchema(),
		"message":    stringSchema(),
		"expiration": int64Schema(),
		"timeLeft":   int64Schema(),
		"username":   stringSchema(),
	})

	doc.Components.Schemas["KeyInfo"] = objectSchema(map[string]*openapi3.SchemaRef{
		"key":        stringSchema(),
		"used":       boolSchema(),
		"username":   stringSchema(),
		"created":    stringSchema(),
		"expiration": stringSchema(),
		"timeLeft":   stringSchema(),
		"expired":    boolSchema(),
	})

	doc.Components.Schemas["KeySummary"] = objectSchema(map[string]*openapi3.SchemaRef{
		"key":      stringSchema(),
		"used":     boolSchema(),
		"username": nullableStringSchema(),
		"expired":  boolSchema(),
		"timeLeft": int64Schema(),
	})

	doc.Components.Schemas["ListKeysResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"count": intSchema(),
		"keys":  arraySchema(openapi3.NewSchemaRef("#/components/schemas/KeySummary", doc.Components.Schemas["KeySummary"].Value)),
	})

	doc.Components.Schemas["ActionResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"success": boolSchema(),
		"message": stringSchema(),
	})

	doc.Components.Schemas["Stats"] = objectSchema(map[string]*openapi3.SchemaRef{
		"active": intSchema(),
		"used":   intSchema(),
	})
}

func addKeyPaths(doc *openapi3.T) {
	doc.Paths.Set("/create", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "createKey",
			Summary:     "Mint one key",
			Description: "Requires the admin secret in the body or a bearer session token.",
			Tags:        []string{"keys"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"password": stringSchema(),
				"duration": intSchema(),
			})),
			Responses: responses(doc, map[int]string{
				200: "CreateKeyResponse",
				403: "Error",
			}),
		},
	})

	doc.Paths.Set("/create-bulk", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "createKeysBulk",
			Summary:     "Mint a batch of keys",
			Description: "Count defaults to 10 and is clamped to 100.",
			Tags:        []string{"keys"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"password": stringSchema(),
				"count":    intSchema(),
				"duration": intSchema(),
			})),
			Responses: responses(doc, map[int]string{
				200: "BulkCreateResponse",
				403: "Error",
			}),
		},
	})

	doc.Paths.Set("/verify", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "verifyKey",
			Summary:     "Redeem a key for a device",
			Description: "First redemption binds the key to the device's hardware id. Unknown, expired, and wrong-device outcomes are 200 responses with valid=false.",
			Tags:        []string{"keys"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"key":      stringSchema(),
				"hwid":     stringSchema(),
				"username": stringSchema(),
				"userid":   stringSchema(),
			})),
			Responses: responses(doc, map[int]string{
				200: "VerifyResult",
				400: "VerifyResult",
			}),
		},
	})

	doc.Paths.Set("/info/{key}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "inspectKey",
			Summary:     "Inspect a key",
			Tags:        []string{"keys"},
			Parameters: openapi3.Parameters{
				{Value: &openapi3.Parameter{
					Name:     "key",
					In:       "path",
					Required: true,
					Schema:   stringSchema(),
				}},
			},
			Responses: responses(doc, map[int]string{
				200: "KeyInfo",
				404: "Error",
			}),
		},
	})

	doc.Paths.Set("/list", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "listKeys",
			Summary:     "List all live keys",
			Tags:        []string{"keys"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"password": stringSchema(),
			})),
			Responses: responses(doc, map[int]string{
				200: "ListKeysResponse",
				403: "Error",
			}),
		},
	})

	doc.Paths.Set("/delete", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "deleteKey",
			Summary:     "Delete a key",
			Tags:        []string{"keys"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"password": stringSchema(),
				"key":      stringSchema(),
			})),
			Responses: responses(doc, map[int]string{
				200: "ActionResponse",
				403: "Error",
				404: "Error",
			}),
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "createSession",
			Summary:     "Exchange the admin secret for a session token",
			Tags:        []string{"admin"},
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.SchemaRef{
				"secret": stringSchema(),
			})),
			Responses: responses(doc, map[int]string{
				403: "Error",
			}),
		},
	})

	bearer := openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/api/v1/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getStats",
			Summary:     "Live and used key counts",
			Tags:        []string{"admin"},
			Security:    &bearer,
			Responses: responses(doc, map[int]string{
				200: "Stats",
				401: "Error",
			}),
		},
	})

	doc.Paths.Set("/api/v1/audit", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listAuditEvents",
			Summary:     "Recent key lifecycle events",
			Tags:        []string{"admin"},
			Security:    &bearer,
			Responses: responses(doc, map[int]string{
				401: "Error",
			}),
		},
	})
}

// ---------------------------------------------------------------------------
// Schema construction helpers
// ---------------------------------------------------------------------------

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func nullableStringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}}}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func intSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}
}

func int64Schema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func objectSchema(props map[string]*openapi3.SchemaRef) *openapi3.SchemaRef {
	schemas := openapi3.Schemas{}
	for name, ref := range props {
		schemas[name] = ref
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}, Properties: schemas}}
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

// responses builds a Responses object mapping status codes to component
// schema references.
func responses(doc *openapi3.T, byStatus map[int]string) *openapi3.Responses {
	out := openapi3.NewResponses()
	for status, schemaName := range byStatus {
		desc := http.StatusText(status)
		out.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content: openapi3.NewContentWithJSONSchemaRef(
					openapi3.NewSchemaRef("#/components/schemas/"+schemaName, doc.Components.Schemas[schemaName].Value),
				),
			},
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler returns an http.HandlerFunc serving the generated document as JSON.
// The document is built and marshaled once on first request.
func Handler() http.HandlerFunc {
	var (
		once sync.Once
		body []byte
		err  error
	)
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			body, err = json.Marshal(Generate("/"))
		})
		if err != nil {
			http.Error(w, "failed to generate spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}
