package linkedin

import (
	"github.com/hazyhaar/profilex/browser"
	"github.com/hazyhaar/profilex/selector"
)

// Selectors groups every locator the adapter uses. Each field lists its
// candidates from the current layout to the oldest known one.
type Selectors struct {
	// Unavailable marks a private or deleted profile.
	Unavailable selector.FieldLocator
	Basic       browser.Section
	Experience  browser.ListSpec
	// PostsLink yields the URL of the activity page.
	PostsLink selector.FieldLocator
	Posts     browser.ListSpec
}

// Login returns the login form of www.linkedin.com.
func Login() browser.LoginForm {
	return browser.LoginForm{
		URL:              "https://www.linkedin.com/login",
		UsernameSelector: "#username",
		PasswordSelector: "#password",
		SubmitSelector:   `button[type="submit"]`,
		HomeMarkers: []string{
			"div.feed-identity-module",
			"div.feed-following-module",
			"div.scaffold-layout__main",
			"div.scaffold-layout",
			"div.global-nav__me",
			"div.authentication-outlet",
		},
		ErrorMarkers:    []string{"div.alert.error", "p.alert-content", "#error-for-password", "#error-for-username"},
		SuccessURLHints: []string{"/feed", "/in/", "/checkpoint"},
	}
}

// nameScript returns the first short heading of the page.
const nameScript = `() => {
	for (const el of document.querySelectorAll('h1, .text-heading-xlarge, .artdeco-entity-lockup__title, .text-heading-large')) {
		const t = el.textContent.trim();
		if (t.length > 0 && t.length < 100) return t;
	}
	return null;
}`

// postsLinkScript finds a "show all posts" anchor by its label.
const postsLinkScript = `() => {
	for (const a of document.querySelectorAll('a')) {
		if (/(show|see) all (posts|activity|articles)/i.test(a.textContent)) return a.href;
	}
	return null;
}`

const innerHTMLScript = `() => this.innerHTML`

// DefaultSelectors returns the built-in locators.
func DefaultSelectors() Selectors {
	return Selectors{
		Unavailable: selector.Field("profile_unavailable", selector.CSSList(
			"div.profile-unavailable",
			"section.profile-unavailable",
		)...),
		Basic: browser.Section{
			Name: "basic",
			Fields: []selector.FieldLocator{
				selector.RequiredField("name", append(selector.CSSList(
					"h1.text-heading-xlarge",
					"h1.top-card-layout__title",
					"h1.pv-top-card--list li",
					".pv-top-card-section__name",
					".profile-info",
					".artdeco-entity-lockup__title",
					".text-heading-large",
				), selector.Script(nameScript))...),
				selector.RequiredField("headline", selector.CSSList(
					"div.text-body-medium",
					".pv-top-card-section__headline",
					".top-card-layout__headline",
					".ph5.pb5 .artdeco-entity-lockup__subtitle",
					".pvs-header__subtitle",
				)...),
				selector.Field("location", selector.CSSList(
					".pv-text-details__left-panel .text-body-small.inline",
					"span.text-body-small.inline.t-black--light.break-words",
					".top-card__subline-item",
					".pv-top-card--list-bullet li",
				)...),
			},
		},
		Experience: browser.ListSpec{
			Name:   "experience",
			Opener: selector.Field("experience_opener", selector.CSS("button.pv-profile-section__see-more-inline")),
			Items: selector.Field("experience_items", selector.CSSList(
				"#experience ~ .pvs-list__outer-container > ul > li",
				"section.experience-section li",
				`section[data-section="experience"] li`,
				".pvs-entity",
				".artdeco-list__item",
				".pv-profile-section__list-item",
				".pv-entity__position-group",
			)...),
			Fields: []selector.FieldLocator{
				selector.Field("title", selector.CSSList(
					".pv-entity__summary-info-margin-top h3",
					".t-16.t-black.t-bold",
					".pv-entity__summary-info h3",
					".pv-profile-section__card-item-v2 h3",
					`[data-field="experience_title"]`,
					".pvs-entity__headline-text",
					".pvs-entity__primary-title",
				)...),
				selector.Field("organization", selector.CSSList(
					".pv-entity__secondary-title",
					".t-14.t-normal",
					".pv-text-details__right-panel-item-text",
					".pv-entity__company-summary-info h3",
					`[data-field="experience_company_name"]`,
					".pvs-entity__subtitle-text",
					".pvs-entity__secondary-title",
				)...),
				selector.Field("period", selector.CSSList(
					".pv-entity__date-range span:nth-child(2)",
					".pv-entity__date-range-v2 span:nth-child(2)",
					".t-14.t-normal.t-black--light",
					`[data-field="date_range"] span`,
					".pvs-entity__caption-text",
					".pvs-entity__date-range",
				)...),
			},
			Key:       []string{"title", "organization", "period"},
			MaxPasses: 1,
		},
		PostsLink: selector.Field("posts_link",
			selector.Attr{Selector: "a[href*='recent-activity/shares']", Name: "href"},
			selector.Attr{Selector: ".pv-recent-activity-section__all-posts-link", Name: "href"},
			selector.Attr{Selector: "a[href*='recent-activity/all']", Name: "href"},
			selector.Script(postsLinkScript),
		),
		Posts: browser.ListSpec{
			Name: "posts",
			Items: selector.Field("post_items", selector.CSSList(
				".feed-shared-update-v2",
				".occludable-update",
				".pv-post-entity",
				".artdeco-card",
			)...),
			Fields: []selector.FieldLocator{
				selector.Field("content_html",
					selector.Script(innerHTMLScript),
				),
				selector.Field("content", selector.CSSList(
					".feed-shared-update-v2__description",
					".feed-shared-text",
					".feed-shared-inline-show-more-text",
					".feed-shared-text-view",
					".share-update-card__update-text",
					".update-components-text",
				)...),
				selector.Field("date", append(selector.CSSList(
					".feed-shared-actor__sub-description span[aria-hidden=\"true\"]",
					".feed-shared-actor__sub-description",
					".feed-shared-time-ago",
					".share-update-card__update-info-text",
					".update-components-actor__sub-description",
				), selector.Attr{Selector: "time", Name: "datetime"}, selector.CSS("time"))...),
				selector.Field("likes", selector.CSSList(
					".social-details-social-counts__reactions-count",
					".feed-shared-social-action-bar__reactions-count",
					".feed-social-aggregated-reaction-count",
					".social-details-social-counts__social-proof-text",
				)...),
				selector.Field("comments", selector.CSSList(
					".social-details-social-counts__comments",
					".feed-shared-social-counts__comments",
					".feed-shared-social-action-bar__comments-count",
				)...),
				selector.Field("image", selector.Attr{Selector: "img.feed-shared-image__image", Name: "src"}),
				selector.Field("video", selector.Attr{Selector: ".feed-shared-video", Name: "class"}),
				selector.Field("article", selector.Attr{Selector: ".feed-shared-article", Name: "class"}),
				selector.Field("document", selector.Attr{Selector: ".feed-shared-document", Name: "class"}),
				selector.Field("article_url", selector.Attr{Selector: ".feed-shared-article__meta-link", Name: "href"}),
			},
			Key: []string{"content", "date"},
		},
	}
}
