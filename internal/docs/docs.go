// Package docs holds the Swagger specification served at /swagger.
// Regenerate with: swag init -g cmd/api/main.go -o internal/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/auth/register": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"auth"
				],
				"summary": "Register a new user",
				"responses": {
					"201": {
						"description": "User registered",
						"schema": {
							"$ref": "#/definitions/handlers.AuthResponse"
						}
					},
					"400": {
						"description": "Invalid input",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"409": {
						"description": "Email already registered",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.RegisterRequest"
						}
					}
				]
			}
		},
		"/auth/login": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"auth"
				],
				"summary": "Login user",
				"responses": {
					"200": {
						"description": "Authenticated",
						"schema": {
							"$ref": "#/definitions/handlers.AuthResponse"
						}
					},
					"401": {
						"description": "Invalid credentials",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"423": {
						"description": "Account locked",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.LoginRequest"
						}
					}
				]
			}
		},
		"/auth/refresh": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"auth"
				],
				"summary": "Refresh tokens",
				"responses": {
					"200": {
						"description": "New tokens",
						"schema": {
							"$ref": "#/definitions/handlers.TokenResponse"
						}
					},
					"401": {
						"description": "Invalid or reused refresh token",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.RefreshRequest"
						}
					}
				]
			}
		},
		"/profile": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"user"
				],
				"summary": "Get user profile",
				"responses": {
					"200": {
						"description": "User profile"
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/users": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"users"
				],
				"summary": "List users",
				"responses": {
					"200": {
						"description": "Users"
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Page size (default 100, max 500)",
						"name": "limit",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Offset",
						"name": "offset",
						"in": "query"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/users/me": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"users"
				],
				"summary": "Get current user",
				"responses": {
					"200": {
						"description": "Current user",
						"schema": {
							"$ref": "#/definitions/handlers.UserResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/users/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"users"
				],
				"summary": "Get user",
				"responses": {
					"200": {
						"description": "User",
						"schema": {
							"$ref": "#/definitions/handlers.UserResponse"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "User not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "User ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"produces": [
					"application/json"
				],
				"tags": [
					"users"
				],
				"summary": "Update user",
				"responses": {
					"200": {
						"description": "Updated user",
						"schema": {
							"$ref": "#/definitions/handlers.UserResponse"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "User ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.UpdateUserRequest"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"users"
				],
				"summary": "Delete user",
				"responses": {
					"200": {
						"description": "Deleted",
						"schema": {
							"$ref": "#/definitions/handlers.SuccessResponse"
						}
					},
					"404": {
						"description": "User not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "User ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/link-tokens": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"items"
				],
				"summary": "Create Link token",
				"responses": {
					"200": {
						"description": "Link token",
						"schema": {
							"$ref": "#/definitions/services.LinkToken"
						}
					},
					"404": {
						"description": "Item not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Provider error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": false,
						"schema": {
							"$ref": "#/definitions/handlers.CreateLinkTokenRequest"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/sandbox/public-tokens": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"items"
				],
				"summary": "Create sandbox public token",
				"responses": {
					"200": {
						"description": "Public token",
						"schema": {
							"$ref": "#/definitions/handlers.SandboxPublicTokenResponse"
						}
					},
					"404": {
						"description": "Not available outside sandbox",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": false,
						"schema": {
							"$ref": "#/definitions/handlers.SandboxPublicTokenRequest"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/token-exchanges": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"items"
				],
				"summary": "Exchange public token",
				"responses": {
					"201": {
						"description": "Linked item",
						"schema": {
							"$ref": "#/definitions/services.ExchangeResult"
						}
					},
					"409": {
						"description": "Item already linked",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Provider error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Request body",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.ExchangeRequest"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/items/{itemId}/account-sync": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"items"
				],
				"summary": "Sync accounts",
				"responses": {
					"200": {
						"description": "Synced accounts",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/handlers.AccountResponse"
							}
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Item not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Item ID",
						"name": "itemId",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/items/{itemId}": {
			"delete": {
				"produces": [
					"application/json"
				],
				"tags": [
					"items"
				],
				"summary": "Remove item",
				"responses": {
					"200": {
						"description": "Removed",
						"schema": {
							"$ref": "#/definitions/handlers.SuccessResponse"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Item not found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Item ID",
						"name": "itemId",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/accounts": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"accounts"
				],
				"summary": "List accounts",
				"responses": {
					"200": {
						"description": "Accounts",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/services.AccountSummary"
							}
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/balances": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"accounts"
				],
				"summary": "Get balances",
				"responses": {
					"200": {
						"description": "Balances",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/services.BalanceSummary"
							}
						}
					},
					"400": {
						"description": "Invalid account ids",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Comma-separated account ids",
						"name": "accountIds",
						"in": "query"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/transaction-syncs": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"transactions"
				],
				"summary": "Sync transactions",
				"responses": {
					"200": {
						"description": "Applied delta counts",
						"schema": {
							"$ref": "#/definitions/handlers.SyncCountsResponse"
						}
					},
					"500": {
						"description": "Provider error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/transactions": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"transactions"
				],
				"summary": "List transactions",
				"responses": {
					"200": {
						"description": "Transactions"
					},
					"400": {
						"description": "Invalid pagination",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Page size (default 100, max 500)",
						"name": "limit",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Offset",
						"name": "offset",
						"in": "query"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/pipeline/users/{userId}/transaction-syncs": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"pipeline"
				],
				"summary": "Sync transactions for a user (pipeline)",
				"responses": {
					"200": {
						"description": "Applied delta counts",
						"schema": {
							"$ref": "#/definitions/handlers.SyncCountsResponse"
						}
					},
					"401": {
						"description": "Invalid API key",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"503": {
						"description": "Pipeline not configured",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Pipeline API key",
						"name": "X-API-Key",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "User ID",
						"name": "userId",
						"in": "path",
						"required": true
					}
				]
			}
		}
	},
	"definitions": {
		"handlers.ErrorDetail": {
			"type": "object",
			"properties": {
				"code": {
					"type": "string"
				},
				"message": {
					"type": "string"
				}
			}
		},
		"handlers.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"$ref": "#/definitions/handlers.ErrorDetail"
				}
			}
		},
		"handlers.SuccessResponse": {
			"type": "object",
			"properties": {
				"success": {
					"type": "boolean"
				}
			}
		},
		"handlers.RegisterRequest": {
			"type": "object",
			"required": [
				"email",
				"password"
			],
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				}
			}
		},
		"handlers.LoginRequest": {
			"type": "object",
			"required": [
				"email",
				"password"
			],
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			}
		},
		"handlers.RefreshRequest": {
			"type": "object",
			"required": [
				"refresh_token"
			],
			"properties": {
				"refresh_token": {
					"type": "string"
				}
			}
		},
		"handlers.UserResponse": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				},
				"role": {
					"type": "string"
				},
				"last_login_at": {
					"type": "string"
				}
			}
		},
		"handlers.AuthResponse": {
			"type": "object",
			"properties": {
				"access_token": {
					"type": "string"
				},
				"refresh_token": {
					"type": "string"
				},
				"user": {
					"$ref": "#/definitions/handlers.UserResponse"
				}
			}
		},
		"handlers.TokenResponse": {
			"type": "object",
			"properties": {
				"access_token": {
					"type": "string"
				},
				"refresh_token": {
					"type": "string"
				}
			}
		},
		"handlers.UpdateUserRequest": {
			"type": "object",
			"properties": {
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				},
				"role": {
					"type": "string"
				}
			}
		},
		"handlers.CreateLinkTokenRequest": {
			"type": "object",
			"properties": {
				"itemId": {
					"type": "string"
				}
			}
		},
		"handlers.SandboxPublicTokenRequest": {
			"type": "object",
			"properties": {
				"institutionId": {
					"type": "string"
				}
			}
		},
		"handlers.SandboxPublicTokenResponse": {
			"type": "object",
			"properties": {
				"publicToken": {
					"type": "string"
				}
			}
		},
		"handlers.ExchangeRequest": {
			"type": "object",
			"required": [
				"publicToken"
			],
			"properties": {
				"publicToken": {
					"type": "string"
				}
			}
		},
		"handlers.AccountResponse": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"item_id": {
					"type": "string"
				},
				"plaid_account_id": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"type": {
					"type": "string"
				},
				"subtype": {
					"type": "string"
				},
				"mask": {
					"type": "string"
				},
				"current_balance": {
					"type": "number"
				},
				"available_balance": {
					"type": "number"
				},
				"currency": {
					"type": "string"
				},
				"last_balance_update": {
					"type": "string"
				}
			}
		},
		"handlers.SyncCountsResponse": {
			"type": "object",
			"properties": {
				"added": {
					"type": "integer"
				},
				"modified": {
					"type": "integer"
				},
				"removed": {
					"type": "integer"
				}
			}
		},
		"services.LinkToken": {
			"type": "object",
			"properties": {
				"linkToken": {
					"type": "string"
				},
				"expiration": {
					"type": "string"
				}
			}
		},
		"services.ExchangeResult": {
			"type": "object",
			"properties": {
				"itemId": {
					"type": "string"
				},
				"institutionName": {
					"type": "string"
				}
			}
		},
		"services.AccountSummary": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"item_id": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"type": {
					"type": "string"
				},
				"current_balance": {
					"type": "number"
				},
				"available_balance": {
					"type": "number"
				},
				"current_balance_display": {
					"type": "string"
				},
				"iso_currency_code": {
					"type": "string"
				},
				"institution_name": {
					"type": "string"
				},
				"item_status": {
					"type": "string"
				}
			}
		},
		"services.BalanceSummary": {
			"type": "object",
			"properties": {
				"account_id": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"type": {
					"type": "string"
				},
				"current": {
					"type": "number"
				},
				"available": {
					"type": "number"
				},
				"current_display": {
					"type": "string"
				},
				"available_display": {
					"type": "string"
				},
				"currency": {
					"type": "string"
				},
				"institution_name": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"description": "Type \"Bearer\" followed by a space and JWT token.",
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "localhost:8080",
	BasePath:		 "/api/v1",
	Schemes:		  []string{},
	Title:			"finlink API",
	Description:	  "finlink links bank institutions through Plaid and keeps accounts, balances and transactions in sync.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
