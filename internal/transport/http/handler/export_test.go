package handler

var SafeRedirectPath = safeRedirectPath
