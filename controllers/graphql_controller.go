package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/cppla/gqlbbs/graph"
	"github.com/cppla/gqlbbs/utils"
)

// GraphQLController serves the GraphQL endpoint.
type GraphQLController struct {
	schema graphql.Schema
}

func NewGraphQLController(schema graphql.Schema) *GraphQLController {
	return &GraphQLController{schema: schema}
}

// Query executes a GraphQL request. POST takes a JSON body, GET takes query
// parameters and only runs query operations. Resolver errors travel in the
// response body with status 200.
func (g *GraphQLController) Query(ctx *gin.Context) {
	var req graph.Request
	if ctx.Request.Method == http.MethodGet {
		req.Query = ctx.Query("query")
		req.OperationName = ctx.Query("operationName")
		if vars := ctx.Query("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				utils.Error(ctx, http.StatusBadRequest, 40001, "invalid graphql variables")
				return
			}
		}
	} else if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid graphql request")
		return
	}
	if req.Query == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "missing query")
		return
	}
	if ctx.Request.Method == http.MethodGet {
		if op := operationType(req.Query, req.OperationName); op != "" && op != ast.OperationTypeQuery {
			ctx.Header("Allow", http.MethodPost)
			utils.Error(ctx, http.StatusMethodNotAllowed, 40501, op+" operations require POST")
			return
		}
	}

	result := graph.Execute(ctx.Request.Context(), g.schema, req)
	ctx.JSON(http.StatusOK, result)
}

// operationType returns the type of the operation a request would run, or ""
// when the document does not parse or names no such operation. Execute
// reports those cases itself.
func operationType(query, name string) string {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return ""
	}
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			ops = append(ops, op)
		}
	}
	if name == "" {
		if len(ops) == 1 {
			return ops[0].Operation
		}
		// ambiguous documents fail in Execute unless every operation is a query
		for _, op := range ops {
			if op.Operation != ast.OperationTypeQuery {
				return op.Operation
			}
		}
		return ""
	}
	for _, op := range ops {
		if op.Name != nil && op.Name.Value == name {
			return op.Operation
		}
	}
	return ""
}
