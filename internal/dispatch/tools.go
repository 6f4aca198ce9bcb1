package dispatch

import (
	"google.golang.org/genai"
)

// Tool names form a closed set; the dispatcher rejects anything else.
const (
	ToolAddItems    = "add_items"
	ToolRemoveItems = "remove_items"
	ToolMoveItems   = "move_items"
	ToolSearchItems = "search_items"
	ToolListBin     = "list_bin"
)

// toolDeclarations is the fixed schema set sent with every completion.
var toolDeclarations = []*genai.Tool{{
	FunctionDeclarations: []*genai.FunctionDeclaration{
		{
			Name:        ToolAddItems,
			Description: "Add one or more named items to a bin. Pass the image reference from the current turn if the user attached a photo.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"bin": {
						Type:        genai.TypeString,
						Description: "Bin name or number to add the items to.",
					},
					"items": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Short names of the items to add.",
					},
					"image_ref": {
						Type:        genai.TypeString,
						Description: "Reference of the photo the items were identified in, if any.",
					},
				},
				Required: []string{"bin", "items"},
			},
		},
		{
			Name:        ToolRemoveItems,
			Description: "Remove items matching a free-text description. When the result asks for disambiguation, relay the choices to the user; pass item_ids or confirm_all only after the user decided.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "Free-text description of the items to remove.",
					},
					"bin": {
						Type:        genai.TypeString,
						Description: "Restrict matching to this bin. Omit to search all bins.",
					},
					"item_ids": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Exact item ids chosen by the user after disambiguation.",
					},
					"confirm_all": {
						Type:        genai.TypeBoolean,
						Description: "Set only when the user confirmed removing every match.",
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolMoveItems,
			Description: "Move items matching a free-text description into another bin. Items already in the target bin are reported as failed.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "Free-text description of the items to move.",
					},
					"from_bin": {
						Type:        genai.TypeString,
						Description: "Restrict matching to this bin. Omit to search all bins.",
					},
					"to_bin": {
						Type:        genai.TypeString,
						Description: "Bin to move the items into.",
					},
					"item_ids": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Exact item ids chosen by the user after disambiguation.",
					},
					"confirm_all": {
						Type:        genai.TypeBoolean,
						Description: "Set only when the user confirmed moving every match.",
					},
				},
				Required: []string{"query", "to_bin"},
			},
		},
		{
			Name:        ToolSearchItems,
			Description: "Find items by meaning. Read-only.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "What to look for.",
					},
					"bin": {
						Type:        genai.TypeString,
						Description: "Restrict the search to this bin. Omit to search all bins.",
					},
					"limit": {
						Type:        genai.TypeInteger,
						Description: "Maximum number of results.",
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolListBin,
			Description: "List everything in one bin. Read-only.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"bin": {
						Type:        genai.TypeString,
						Description: "Bin name or number to list.",
					},
				},
				Required: []string{"bin"},
			},
		},
	},
}}

// Tools returns the declarations sent to the model.
func Tools() []*genai.Tool {
	return toolDeclarations
}
