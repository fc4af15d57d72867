// Package docs registers the storefront API description with swag.
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
                "tags": ["auth"],
                "summary": "Create an account and start a session",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CredentialsRequest"}}],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/HTTPError"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Start a session",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CredentialsRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/HTTPError"}}
                }
            }
        },
        "/products": {
            "get": {
                "tags": ["products"],
                "summary": "List products",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ListResponse"}}}
            },
            "post": {
                "tags": ["products"],
                "summary": "Create a product (requires manage_products)",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateProductRequest"}}],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/HTTPError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/HTTPError"}}
                }
            }
        },
        "/products/{id}": {
            "get": {
                "tags": ["products"],
                "summary": "Get a product",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/HTTPError"}}
                }
            }
        },
        "/cart": {
            "get": {"tags": ["cart"], "summary": "List cart items", "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["cart"],
                "summary": "Add a product; an existing line has its quantity incremented",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/AddItemRequest"}}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/HTTPError"}}}
            },
            "delete": {"tags": ["cart"], "summary": "Clear the cart", "responses": {"200": {"description": "OK"}}}
        },
        "/cart/delete-selected": {
            "post": {
                "tags": ["cart"],
                "summary": "Remove selected cart items",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/DeleteSelectedRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/orders": {
            "get": {"tags": ["orders"], "summary": "Order history, newest first", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/OrderListResponse"}}}}
        },
        "/checkout/finalize": {
            "post": {
                "tags": ["checkout"],
                "summary": "Verify the payment, write the order and clear the cart",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/FinalizeRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/FinalizeResponse"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/FinalizeResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/FinalizeResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/FinalizeResponse"}}
                }
            }
        },
        "/admin/set-role": {
            "post": {
                "tags": ["admin"],
                "summary": "Replace a user's roles (requires manage_roles)",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SetRoleRequest"}}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/HTTPError"}}}
            }
        }
    },
    "definitions": {
        "HTTPError": {"type": "object", "properties": {"error": {"type": "string", "example": "not found"}}},
        "CredentialsRequest": {"type": "object", "properties": {"email": {"type": "string"}, "password": {"type": "string"}}},
        "SetRoleRequest": {"type": "object", "properties": {"userId": {"type": "string"}, "role": {"type": "string", "example": "admin"}}},
        "CreateProductRequest": {"type": "object", "properties": {"name": {"type": "string"}, "description": {"type": "string"}, "price": {"type": "string", "example": "199000"}, "image_url": {"type": "string"}}},
        "ListResponse": {"type": "object", "properties": {"q": {"type": "string"}, "limit": {"type": "integer"}, "offset": {"type": "integer"}, "items": {"type": "array", "items": {"type": "object"}}}},
        "AddItemRequest": {"type": "object", "properties": {"product_id": {"type": "string"}, "quantity": {"type": "integer", "example": 1}}},
        "DeleteSelectedRequest": {"type": "object", "properties": {"itemIds": {"type": "array", "items": {"type": "string"}}}},
        "OrderListResponse": {"type": "object", "properties": {"items": {"type": "array", "items": {"type": "object"}}}},
        "FinalizeRequest": {"type": "object", "properties": {"paymentKey": {"type": "string"}, "orderId": {"type": "string"}, "amount": {"type": "string", "example": "25000"}}},
        "FinalizeResponse": {"type": "object", "properties": {"orderId": {"type": "string"}, "status": {"type": "string", "example": "completed"}, "reason": {"type": "string"}, "warnings": {"type": "array", "items": {"type": "string"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Storefront API",
	Description:      "Product catalogue, cart, order history and checkout finalization.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
