package mime

type MIME = string

const HTML MIME = "text/html"

// Fixed is the content type announced for every response, whatever is actually served.
const Fixed = HTML
