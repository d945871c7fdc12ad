package unomi

// Condition types understood by the Unomi query endpoints.
const (
	ConditionMatchAll        = "matchAllCondition"
	ConditionBoolean         = "booleanCondition"
	ConditionProfileProperty = "profilePropertyCondition"
)

// Comparison operators used by profilePropertyCondition.
const (
	OperatorEquals = "equals"
	OperatorExists = "exists"
)

// Condition is a composable, server-side evaluated profile predicate.
type Condition struct {
	Type            string          `json:"type"`
	ParameterValues ParameterValues `json:"parameterValues"`
}

// ParameterValues carries the arguments of a condition. Unused fields are
// omitted so a matchAll condition serializes as an empty object.
type ParameterValues struct {
	PropertyName       string      `json:"propertyName,omitempty"`
	ComparisonOperator string      `json:"comparisonOperator,omitempty"`
	PropertyValue      string      `json:"propertyValue,omitempty"`
	Operator           string      `json:"operator,omitempty"`
	SubConditions      []Condition `json:"subConditions,omitempty"`
}

// MatchAll matches every profile.
func MatchAll() Condition {
	return Condition{Type: ConditionMatchAll}
}

// PropertyEquals matches profiles whose property equals value.
func PropertyEquals(property, value string) Condition {
	return Condition{
		Type: ConditionProfileProperty,
		ParameterValues: ParameterValues{
			PropertyName:       property,
			ComparisonOperator: OperatorEquals,
			PropertyValue:      value,
		},
	}
}

// PropertyExists matches profiles that carry the property.
func PropertyExists(property string) Condition {
	return Condition{
		Type: ConditionProfileProperty,
		ParameterValues: ParameterValues{
			PropertyName:       property,
			ComparisonOperator: OperatorExists,
		},
	}
}

// And matches profiles satisfying every sub condition.
func And(conditions ...Condition) Condition {
	return boolean("and", conditions)
}

// Or matches profiles satisfying at least one sub condition.
func Or(conditions ...Condition) Condition {
	return boolean("or", conditions)
}

func boolean(operator string, conditions []Condition) Condition {
	subs := make([]Condition, len(conditions))
	copy(subs, conditions)
	return Condition{
		Type: ConditionBoolean,
		ParameterValues: ParameterValues{
			Operator:      operator,
			SubConditions: subs,
		},
	}
}
