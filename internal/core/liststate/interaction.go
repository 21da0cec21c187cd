package liststate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// Update lists keys to change. An empty value removes the key.
type Update map[string]string

// Apply merges update into a copy of current. Keys not named in update are
// kept as they are.
func Apply(current url.Values, update Update) url.Values {
	out := make(url.Values, len(current)+len(update))
	for k, v := range current {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range update {
		if v == "" {
			out.Del(k)
			continue
		}
		out.Set(k, v)
	}
	return out
}

// SubmitSearch sets the search term and returns to the first page.
func SubmitSearch(current url.Values, input string) url.Values {
	return Apply(current, Update{
		KeySearch: strings.TrimSpace(input),
		KeyPage:   "1",
	})
}

// FilterStatus sets or clears the status filter and returns to the first
// page. "all" and "" clear the filter.
func FilterStatus(current url.Values, status string) url.Values {
	status = strings.TrimSpace(status)
	if strings.EqualFold(status, statusAll) {
		status = ""
	}
	return Apply(current, Update{
		KeyStatus: status,
		KeyPage:   "1",
	})
}

// ToggleSort flips the direction when column is already active and otherwise
// makes column active in ascending order. Unknown columns leave the state
// unchanged.
func ToggleSort(current url.Values, column string) url.Values {
	if !domain.ValidSortColumn(column) {
		return Apply(current, nil)
	}
	st := Parse(current)
	order := domain.SortAsc
	if st.SortBy == column {
		order = st.SortOrder.Flip()
	}
	return Apply(current, Update{
		KeySortBy:    column,
		KeySortOrder: string(order),
	})
}

func GoToPage(current url.Values, page int) url.Values {
	if page < 1 {
		page = 1
	}
	return Apply(current, Update{KeyPage: strconv.Itoa(page)})
}

// NextPage advances one page. It does not move past totalPages when
// totalPages is known.
func NextPage(current url.Values, totalPages int) url.Values {
	page := Parse(current).Page + 1
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	return GoToPage(current, page)
}

func PrevPage(current url.Values) url.Values {
	return GoToPage(current, Parse(current).Page-1)
}

// PageWindow returns at most size page numbers centred on current and
// clamped to [1, total]. It returns an empty window when total is zero.
func PageWindow(current, total, size int) []int {
	if total <= 0 || size <= 0 {
		return []int{}
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	start := current - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > total {
		end = total
		start = end - size + 1
		if start < 1 {
			start = 1
		}
	}

	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out
}
