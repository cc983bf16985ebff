package utils

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExtractString safely extracts a string from a DynamoDB attribute map
func ExtractString(item map[string]types.AttributeValue, field string) string {
	if attr, ok := item[field]; ok {
		if v, ok := attr.(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

// StringKey builds a single-attribute string key
func StringKey(field, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		field: &types.AttributeValueMemberS{Value: value},
	}
}

// CompositeKey builds a partition + sort key
func CompositeKey(pkField, pk, skField, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkField: &types.AttributeValueMemberS{Value: pk},
		skField: &types.AttributeValueMemberS{Value: sk},
	}
}
